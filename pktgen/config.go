package pktgen

import (
	"errors"
	"fmt"
	"net"

	"github.com/dyso-testbed/dyso/core/macaddr"
	"github.com/dyso-testbed/dyso/core/nnduration"
	"github.com/dyso-testbed/dyso/pktgen/pktgendef"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/math"
	"go.uber.org/multierr"
)

const (
	// MinPacketLength is the minimum packet length, excluding FCS.
	MinPacketLength = 60

	// L4None selects an Ethernet-only template.
	L4None = ""
	// L4TCP selects an Ethernet+IPv4+TCP template.
	L4TCP = "tcp"
)

// Error conditions.
var (
	ErrAppID        = errors.New("application ID must be positive")
	ErrEtherType    = errors.New("EtherType must be at least 0x0600")
	ErrMAC          = errors.New("MAC address must be MAC-48")
	ErrL4           = errors.New("unknown L4 protocol")
	ErrPacketLength = errors.New("packet length out of range")
	ErrTimer        = errors.New("timer period must be positive")
	ErrBufferRange  = errors.New("buffer region out of range")
)

var defaultDstMAC = macaddr.MustParse("01:02:03:04:05:06")

// Config describes a packet generator application.
type Config struct {
	AppID pktgendef.AppID `json:"appId"`

	EtherType uint16       `json:"etherType"`
	SrcMAC    macaddr.Flag `json:"srcMac"`
	DstMAC    macaddr.Flag `json:"dstMac,omitempty"` // default is 01:02:03:04:05:06
	L4        string       `json:"l4,omitempty"`     // "" or "tcp"

	PacketLength int                    `json:"packetLength"` // frame length excluding FCS
	TimerPeriod  nnduration.Nanoseconds `json:"timerPeriod"`
	BatchCount   int                    `json:"batchCount,omitempty"`  // batches per trigger, minimum/default is 1
	PacketCount  int                    `json:"packetCount,omitempty"` // packets per batch, minimum/default is 1

	Pipe         int `json:"pipe"`
	LocalPort    int `json:"localPort"`
	SrcPort      int `json:"srcPort"` // pipe-local source port written into the generator header
	BufferOffset int `json:"bufferOffset"`
}

func (cfg *Config) applyDefaults() {
	if cfg.DstMAC.Empty() {
		cfg.DstMAC = defaultDstMAC
	}
	cfg.BatchCount = math.MaxInt(1, cfg.BatchCount)
	cfg.PacketCount = math.MaxInt(1, cfg.PacketCount)
}

// Validate checks the configuration.
func (cfg Config) Validate() error {
	cfg.applyDefaults()
	errs := []error{}
	if cfg.AppID <= 0 {
		errs = append(errs, ErrAppID)
	}
	if cfg.EtherType < 0x0600 {
		errs = append(errs, ErrEtherType)
	}
	if !macaddr.IsValid(cfg.SrcMAC.HardwareAddr) || !macaddr.IsValid(cfg.DstMAC.HardwareAddr) {
		errs = append(errs, ErrMAC)
	}
	if cfg.L4 != L4None && cfg.L4 != L4TCP {
		errs = append(errs, fmt.Errorf("%w %q", ErrL4, cfg.L4))
	}
	if hdrLen := cfg.headerLength(); cfg.PacketLength < math.MaxInt(MinPacketLength, hdrLen) {
		errs = append(errs, fmt.Errorf("%w: %d is shorter than %d", ErrPacketLength, cfg.PacketLength, math.MaxInt(MinPacketLength, hdrLen)))
	}
	if cfg.TimerPeriod == 0 {
		errs = append(errs, ErrTimer)
	}
	if _, e := pktgendef.MakePort(cfg.Pipe, cfg.LocalPort); e != nil {
		errs = append(errs, e)
	}
	if cfg.SrcPort < 0 || cfg.SrcPort >= pktgendef.MaxLocalPort {
		errs = append(errs, fmt.Errorf("source port %d out of range", cfg.SrcPort))
	}
	if r := cfg.Region(); r.Offset < 0 || r.End() > pktgendef.BufferSize {
		errs = append(errs, fmt.Errorf("%w: %s", ErrBufferRange, r))
	}
	return multierr.Combine(errs...)
}

func (cfg Config) headerLength() (n int) {
	n = 14
	if cfg.L4 == L4TCP {
		n += 20 + 20
	}
	return n
}

// Port returns the device port.
// Invalid pipe or local port yields zero.
func (cfg Config) Port() pktgendef.Port {
	port, _ := pktgendef.MakePort(cfg.Pipe, cfg.LocalPort)
	return port
}

// Region returns the packet buffer region occupied by this application.
func (cfg Config) Region() Region {
	return Region{Offset: cfg.BufferOffset, Length: cfg.PacketLength - pktgendef.HeaderLen}
}

// Template builds the packet template.
// It consists of the headers followed by zero padding up to PacketLength.
func (cfg Config) Template() ([]byte, error) {
	cfg.applyDefaults()
	eth := layers.Ethernet{
		SrcMAC:       cfg.SrcMAC.HardwareAddr,
		DstMAC:       cfg.DstMAC.HardwareAddr,
		EthernetType: layers.EthernetType(cfg.EtherType),
	}
	headers := []gopacket.SerializableLayer{&eth}

	switch cfg.L4 {
	case L4None:
	case L4TCP:
		ip := layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IPv4(127, 0, 0, 1),
			DstIP:    net.IPv4(127, 0, 0, 1),
		}
		tcp := layers.TCP{
			SrcPort: 20,
			DstPort: 80,
			SYN:     true,
			Window:  8192,
		}
		tcp.SetNetworkLayerForChecksum(&ip)
		headers = append(headers, &ip, &tcp)
	default:
		return nil, fmt.Errorf("%w %q", ErrL4, cfg.L4)
	}

	padLen := cfg.PacketLength - cfg.headerLength()
	if padLen < 0 {
		return nil, fmt.Errorf("%w: %d", ErrPacketLength, cfg.PacketLength)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if e := gopacket.SerializeLayers(buf, opts, append(headers, gopacket.Payload(make([]byte, padLen)))...); e != nil {
		return nil, e
	}
	return buf.Bytes(), nil
}

// BufferData returns the octets written to the packet buffer.
// This excludes the leading octets overwritten by the generator header.
func (cfg Config) BufferData() ([]byte, error) {
	pkt, e := cfg.Template()
	if e != nil {
		return nil, e
	}
	if len(pkt) <= pktgendef.HeaderLen {
		return nil, fmt.Errorf("%w: template is %d octets", ErrPacketLength, len(pkt))
	}
	return pkt[pktgendef.HeaderLen:], nil
}

// AppConfig returns hardware application configuration.
func (cfg Config) AppConfig() pktgendef.AppConfig {
	cfg.applyDefaults()
	return pktgendef.AppConfig{
		TriggerType:  pktgendef.TriggerTimerPeriodic,
		Timer:        uint64(cfg.TimerPeriod),
		BatchCount:   cfg.BatchCount - 1,
		PacketCount:  cfg.PacketCount - 1,
		SrcPort:      cfg.SrcPort,
		BufferOffset: cfg.BufferOffset,
		Length:       cfg.Region().Length,
	}
}

// QueryConfig returns the query traffic application: 64-octet TCP packets every 12ns on pipe 0.
func QueryConfig() Config {
	return Config{
		AppID:        pktgendef.AppQuery,
		EtherType:    0xBFBF,
		SrcMAC:       macaddr.MustParse("BF:CC:11:22:33:44"),
		L4:           L4TCP,
		PacketLength: 64,
		TimerPeriod:  12,
		Pipe:         0,
		LocalPort:    68,
		SrcPort:      68,
		BufferOffset: 0,
	}
}

// ControlConfig returns the control traffic application: 76-octet packets every 1us on pipe 1.
func ControlConfig() Config {
	return Config{
		AppID:        pktgendef.AppControl,
		EtherType:    0xFBFB,
		SrcMAC:       macaddr.MustParse("BF:CC:11:22:33:44"),
		PacketLength: 76,
		TimerPeriod:  1000,
		Pipe:         1,
		LocalPort:    68,
		SrcPort:      68,
		BufferOffset: 64,
	}
}
