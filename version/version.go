// Package version holds the identification strings the server publishes
// to guests through the CGI environment.
package version

const (
	// ServerSoftware is published as SERVER_SOFTWARE.
	ServerSoftware = "WAGI/1"

	// GatewayInterface is published as GATEWAY_INTERFACE.
	GatewayInterface = "CGI/1.1"

	// ServerProtocol is published as SERVER_PROTOCOL.
	ServerProtocol = "HTTP/1.1"
)
