package sma_multicast

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DEFAULT_MULTICAST_GROUP = "239.12.255.254"
	DEFAULT_MULTICAST_PORT  = 9522
	DEFAULT_READ_BUFFER     = 1024
	// all SMA devices on the network answer this
	DISCOVERY_PAYLOAD_HEX = "534d4100000402a0ffffffff0000002000000000"

	readPollInterval = 500 * time.Millisecond
)

var ErrListenerClosed = errors.New("multicast listener is not open")

type ListenerConfig struct {
	Group string
	Port  uint
	// Interface name to join the group on. Takes precedence over LocalAddress
	Interface string
	// IP address of the local interface to join the group on
	LocalAddress   string
	ReadBufferSize int
}

type Datagram struct {
	Data       []byte
	Source     net.Addr
	ReceivedAt time.Time
}

type TelegramSource interface {
	Open() error
	Close() error
	SendDiscovery() error
	ReadTelegram(ctx context.Context) (*Datagram, error)
}

type MulticastListener struct {
	cfg    ListenerConfig
	mu     sync.Mutex
	conn   *net.UDPConn
	group  *net.UDPAddr
	buffer []byte
	logger *zap.Logger
}

func NewMulticastListener(cfg ListenerConfig, logger *zap.Logger) *MulticastListener {
	if cfg.Group == "" {
		cfg.Group = DEFAULT_MULTICAST_GROUP
	}
	if cfg.Port == 0 {
		cfg.Port = DEFAULT_MULTICAST_PORT
	}
	if cfg.ReadBufferSize < HOME_MANAGER_TELEGRAM_LENGTH {
		cfg.ReadBufferSize = DEFAULT_READ_BUFFER
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MulticastListener{
		cfg:    cfg,
		logger: logger,
	}
}

func (l *MulticastListener) Open() error {
	group, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", l.cfg.Group, l.cfg.Port))
	if err != nil {
		return err
	}
	if !group.IP.IsMulticast() {
		return fmt.Errorf("%s is not a multicast address", l.cfg.Group)
	}

	iface, err := resolveInterface(l.cfg.Interface, l.cfg.LocalAddress)
	if err != nil {
		return err
	}

	conn, err := net.ListenMulticastUDP("udp4", iface, group)
	if err != nil {
		return err
	}
	if err := conn.SetReadBuffer(l.cfg.ReadBufferSize * 64); err != nil {
		l.logger.Warn("could not set socket read buffer", zap.Error(err))
	}

	ifaceName := "default"
	if iface != nil {
		ifaceName = iface.Name
	}
	l.logger.Info("joined multicast group", zap.String("group", group.String()), zap.String("interface", ifaceName))

	l.mu.Lock()
	l.conn = conn
	l.group = group
	l.buffer = make([]byte, l.cfg.ReadBufferSize)
	l.mu.Unlock()
	return nil
}

func (l *MulticastListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *MulticastListener) SendDiscovery() error {
	conn := l.currentConn()
	if conn == nil {
		return ErrListenerClosed
	}
	payload, err := hex.DecodeString(DISCOVERY_PAYLOAD_HEX)
	if err != nil {
		return err
	}
	l.logger.Debug("sending discovery", zap.String("payload", DISCOVERY_PAYLOAD_HEX), zap.String("group", l.group.String()))
	_, err = conn.WriteToUDP(payload, l.group)
	return err
}

// ReadTelegram blocks until a datagram arrives or ctx is done. The returned
// data is a copy and remains valid after the next read.
func (l *MulticastListener) ReadTelegram(ctx context.Context) (*Datagram, error) {
	for {
		conn := l.currentConn()
		if conn == nil {
			return nil, ErrListenerClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			return nil, err
		}
		n, src, err := conn.ReadFromUDP(l.buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return nil, err
		}
		data := make([]byte, n)
		copy(data, l.buffer[:n])
		return &Datagram{
			Data:       data,
			Source:     src,
			ReceivedAt: time.Now(),
		}, nil
	}
}

func (l *MulticastListener) currentConn() *net.UDPConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func resolveInterface(name, localAddress string) (*net.Interface, error) {
	if name != "" {
		return net.InterfaceByName(name)
	}
	if localAddress == "" {
		return nil, nil
	}
	ip := net.ParseIP(localAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid local address %q", localAddress)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", localAddress)
}

// ensure interface compliance
var _ TelegramSource = (*MulticastListener)(nil)
