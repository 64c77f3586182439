package config

// Master IDs of the bus initiators on the chiplet
const (
	MasterTRCH     = 0x2d
	MasterRTPSCPU0 = 0x2e
	MasterRTPSCPU1 = 0x2f
	MasterHPPSCPU0 = 0x80
	MasterHPPSCPU1 = 0x8d
	MasterHPPSCPU2 = 0x8e
	MasterHPPSCPU3 = 0x8f
	MasterHPPSCPU4 = 0x90
	MasterHPPSCPU5 = 0x9d
	MasterHPPSCPU6 = 0x9e
	MasterHPPSCPU7 = 0x9f
)

// System describes the mailbox resources visible to one core
type System struct {
	Name      string  `json:"name"`
	Blocks    []Block `json:"blocks"`
	Links     []Link  `json:"links"`
	QueueSize int     `json:"queue_size"`
	MaxLinks  int     `json:"max_links"`
	Debug     bool    `json:"debug"`

	// GICBase is the interrupt distributor of this core's cluster
	GICBase uint64 `json:"gic_base"`

	// UARTBase is the console UART; zero disables the console bridge
	UARTBase uint64 `json:"uart_base"`

	// AckTimeoutMS bounds the wait for the ack of a reply; 0 waits forever
	AckTimeoutMS uint32 `json:"ack_timeout_ms"`
}

// Block is one mailbox IP block
type Block struct {
	Name    string `json:"name"`
	Base    uint64 `json:"base"`
	IRQBase uint32 `json:"irq_base"`
}

// Link is a request/reply channel over two instances of a block
type Link struct {
	Label     string `json:"label"`
	Block     string `json:"block"`
	In        uint32 `json:"in"`
	Out       uint32 `json:"out"`
	RcvInt    uint32 `json:"rcv_int"`
	AckInt    uint32 `json:"ack_int"`
	Owner     uint32 `json:"owner"`
	Role      string `json:"role"` // "server", "client" or derived from owner
	Local     uint32 `json:"local"`
	Remote    uint32 `json:"remote"`
	TimeoutMS uint32 `json:"timeout_ms"` // 0 waits forever
	SelfTest  bool   `json:"self_test"`  // ECHO 42 at boot, client links only
}
