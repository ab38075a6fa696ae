package effects

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"jarvis/internal/command"
)

var ErrNoBattery = errors.New("no battery found")

// System reads machine status through gopsutil and the battery package.
type System struct {
	// RouteAddr is dialled (UDP, nothing is sent) to learn the outbound address.
	RouteAddr string
	Interval  time.Duration

	batteries func() ([]*battery.Battery, error)
}

func NewSystem() *System {
	return &System{
		RouteAddr: "8.8.8.8:80",
		Interval:  500 * time.Millisecond,
		batteries: battery.GetAll,
	}
}

func (s *System) Battery(context.Context) (command.Battery, error) {
	all, err := s.batteries()
	for _, b := range all {
		if b == nil || b.Full <= 0 {
			continue
		}
		return command.Battery{
			Percent:  min(b.Current/b.Full*100, 100),
			Charging: b.State.Raw == battery.Charging,
		}, nil
	}
	if err != nil {
		return command.Battery{}, fmt.Errorf("read battery: %w", err)
	}
	return command.Battery{}, ErrNoBattery
}

func (s *System) CPUPercent(ctx context.Context) (float64, error) {
	p, err := cpu.PercentWithContext(ctx, s.Interval, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(p) == 0 {
		return 0, errors.New("cpu percent: no samples")
	}
	return p[0], nil
}

func (s *System) Memory(ctx context.Context) (command.Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return command.Memory{}, fmt.Errorf("virtual memory: %w", err)
	}
	return command.Memory{Percent: vm.UsedPercent, Total: vm.Total}, nil
}

func (s *System) IPAddress(ctx context.Context) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", s.RouteAddr)
	if err != nil {
		return "", fmt.Errorf("outbound route: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "", errors.New("no local address")
	}
	return addr.IP.String(), nil
}

func (s *System) OS(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("host info: %w", err)
	}
	return describeHost(info), nil
}

func describeHost(info *host.InfoStat) string {
	name := info.Platform
	if name == "" {
		name = info.OS
	}
	if name == "" {
		name = "an unknown system"
	} else {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	if info.PlatformVersion != "" {
		name += " " + info.PlatformVersion
	}
	if info.KernelVersion != "" {
		return fmt.Sprintf("You are running %s with kernel %s.", name, info.KernelVersion)
	}
	return fmt.Sprintf("You are running %s.", name)
}
