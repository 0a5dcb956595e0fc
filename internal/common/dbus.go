package common

// D-Bus configuration of the GNOME Shell Desktop extension
const (
	DesktopDestination = "org.gnome.Shell"
	DesktopObjectPath  = "/org/gnome/shell/extensions/Desktop"
	DesktopInterface   = "org.gnome.shell.extensions.Desktop"

	// Post carries one encoded client message (signature "ay").
	DesktopPostMethod = DesktopInterface + ".Post"

	// Message carries one encoded server message (signature "ay"), for
	// replies and notifications alike.
	DesktopMessageMember = "Message"
	DesktopMessageSignal = DesktopInterface + "." + DesktopMessageMember
)

// Environment variables consulted when no flag or config value is given
const (
	EnvTransport = "DESKTOP_TRANSPORT"
	EnvSocket    = "DESKTOP_SOCKET"
	EnvPostgres  = "POSTGRES_CONNECTION_STRING"
	EnvWebhook   = "WEBHOOK_URL"
)
