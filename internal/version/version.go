// ABOUTME: Product and version constants
// ABOUTME: Shown in the banner and TUI and sent as the websocket user agent
package version

const (
	Version      = "0.3.0"
	Product      = "livetalk"
	Manufacturer = "Resonate Protocol"
)

// UserAgent identifies this client on outbound connections
func UserAgent() string {
	return Product + "/" + Version
}
