package config

// MaxPacketSize bounds the size of gRPC messages exchanged between client and server.
const MaxPacketSize = 16 * 1024 * 1024

// DefaultPort is the port the server listens on when none is given.
const DefaultPort = "25374"
