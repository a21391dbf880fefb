// Package natutil is the external NAT collaborator the engine's
// Non-goals call out: NAT traversal happens outside the DHT engine,
// through UPnP IGD or NAT-PMP, never by in-band hole-punching. Grounded
// on the teacher's p2p/discover/udp.go, which threads a nat.Interface
// and calls nat.Map(natm, udp.closing, "udp", realaddr.Port,
// realaddr.Port, "moac discovery") once at listener startup; this
// package reproduces that Interface/Map shape with two concrete
// backends (UPnP IGD via huin/goupnp, NAT-PMP via jackpal/go-nat-pmp)
// since the teacher's own p2p/nat package was not part of the
// retrieval pack.
package natutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"

	"github.com/MOACChain/knode/klog"
)

// Interface is any collaborator capable of reporting this host's
// externally-visible IP and punching a port mapping for it.
type Interface interface {
	ExternalIP() (net.IP, error)
	AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error
	DeleteMapping(protocol string, extport, intport int) error
	String() string
}

// Map renews a port mapping on m every two thirds of lifetime until done is closed,
// mirroring the teacher's nat.Map goroutine started alongside the UDP
// listener.
func Map(m Interface, done <-chan struct{}, protocol string, extport, intport int, name string, log *klog.Logger) {
	if log == nil {
		log = klog.Nop()
	}
	if m == nil {
		return
	}
	const lifetime = 20 * time.Minute
	refresh := time.NewTimer(0)
	defer refresh.Stop()
	defer m.DeleteMapping(protocol, extport, intport)

	for {
		log.Debugf("mapping %s port %d->%d (%s) via %s", protocol, extport, intport, name, m)
		if err := m.AddMapping(protocol, extport, intport, name, lifetime); err != nil {
			log.Debugf("couldn't add port mapping: %v", err)
		} else {
			log.Debugf("mapped %s port %d->%d via %s", protocol, extport, intport, m)
		}

		select {
		case <-time.After(lifetime * 2 / 3):
		case <-done:
			return
		}
	}
}

// Discover tries UPnP IGD discovery first, falling back to NAT-PMP
// against the default gateway, and finally reports ErrNoGateway.
func Discover() (Interface, error) {
	if u, err := discoverUPnP(); err == nil {
		return u, nil
	}
	gw, err := defaultGateway()
	if err != nil {
		return nil, ErrNoGateway
	}
	return discoverPMP(gw)
}

// ErrNoGateway is reported when no NAT gateway could be found by any
// collaborator.
var ErrNoGateway = errors.New("natutil: no gateway device found")

// --- UPnP IGD ---------------------------------------------------------

type upnpClient interface {
	GetExternalIPAddress() (string, error)
	AddPortMapping(string, uint16, string, uint16, string, bool, string, uint32) error
	DeletePortMapping(string, uint16, string) error
}

type upnp struct {
	dev     *goupnp.RootDevice
	service string
	client  upnpClient
	ip      net.IP
}

func discoverUPnP() (*upnp, error) {
	devs, err := goupnp.DiscoverDevices(internetgateway2.URN_WANConnectionDevice_2)
	if err != nil || len(devs) == 0 {
		devs, err = goupnp.DiscoverDevices(internetgateway1.URN_WANConnectionDevice_1)
	}
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.Root == nil {
			continue
		}
		if u := wrapUPnPDevice(d.Root); u != nil {
			return u, nil
		}
	}
	return nil, errors.New("natutil: no UPnP IGD device found")
}

func wrapUPnPDevice(dev *goupnp.RootDevice) *upnp {
	if clients, _, err := internetgateway2.NewWANIPConnection1ClientsFromRootDevice(dev, nil); err == nil && len(clients) > 0 {
		return &upnp{dev: dev, service: "WANIPConnection1 (IGDv2)", client: clients[0]}
	}
	if clients, _, err := internetgateway1.NewWANIPConnection1ClientsFromRootDevice(dev, nil); err == nil && len(clients) > 0 {
		return &upnp{dev: dev, service: "WANIPConnection1 (IGDv1)", client: clients[0]}
	}
	return nil
}

func (n *upnp) ExternalIP() (net.IP, error) {
	s, err := n.client.GetExternalIPAddress()
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("natutil: bad external IP %q from gateway", s)
	}
	n.ip = ip
	return ip, nil
}

func (n *upnp) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	internal, err := internalAddress()
	if err != nil {
		return err
	}
	protocol = strings.ToUpper(protocol)
	_ = n.client.DeletePortMapping("", uint16(extport), protocol)
	return n.client.AddPortMapping("", uint16(extport), protocol, uint16(intport), internal.String(), true, name, uint32(lifetime/time.Second))
}

func (n *upnp) DeleteMapping(protocol string, extport, intport int) error {
	return n.client.DeletePortMapping("", uint16(extport), strings.ToUpper(protocol))
}

func (n *upnp) String() string {
	return fmt.Sprintf("UPnP(%s)", n.service)
}

// --- NAT-PMP ------------------------------------------------------------

type pmp struct {
	gw     net.IP
	client *natpmp.Client
}

func discoverPMP(gw net.IP) (*pmp, error) {
	return &pmp{gw: gw, client: natpmp.NewClient(gw)}, nil
}

func (n *pmp) ExternalIP() (net.IP, error) {
	res, err := n.client.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	return net.IP(res.ExternalIPAddress[:]), nil
}

func (n *pmp) AddMapping(protocol string, extport, intport int, name string, lifetime time.Duration) error {
	_, err := n.client.AddPortMapping(strings.ToLower(protocol), intport, extport, int(lifetime/time.Second))
	return err
}

func (n *pmp) DeleteMapping(protocol string, extport, intport int) error {
	_, err := n.client.AddPortMapping(strings.ToLower(protocol), intport, 0, 0)
	return err
}

func (n *pmp) String() string {
	return fmt.Sprintf("NAT-PMP(%s)", n.gw)
}

// --- local-network helpers -----------------------------------------------

// internalAddress returns this host's private IPv4 address on its
// default interface, used to target port mappings at the right host.
func internalAddress() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP, nil
			}
		}
	}
	return nil, errors.New("natutil: no IPv4 interface found")
}

// defaultGateway guesses the LAN gateway as the ".1" host on this
// machine's primary IPv4 subnet — a best-effort heuristic, since Go's
// standard library exposes no direct route-table query.
func defaultGateway() (net.IP, error) {
	ip, err := internalAddress()
	if err != nil {
		return nil, err
	}
	gw := make(net.IP, len(ip.To4()))
	copy(gw, ip.To4())
	gw[3] = 1
	return gw, nil
}
