package wg

import (
	"fmt"
	"log/slog"
	"net"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// CtrlGateway drives the interface through the wgctrl kernel interface,
// avoiding the wg binary entirely. Selected with gateway_mode: wgctrl.
type CtrlGateway struct {
	iface  string
	logger *slog.Logger
}

func NewCtrlGateway(iface string, logger *slog.Logger) *CtrlGateway {
	return &CtrlGateway{iface: iface, logger: logger}
}

func (g *CtrlGateway) device() (*wgctrl.Client, *wgtypes.Device, error) {
	c, err := wgctrl.New()
	if err != nil {
		return nil, nil, fmt.Errorf("wg: wgctrl client: %w", err)
	}
	d, err := c.Device(g.iface)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("wg: device %s: %w", g.iface, err)
	}
	return c, d, nil
}

func (g *CtrlGateway) Peers() ([]PeerSample, error) {
	c, d, err := g.device()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var peers []PeerSample
	for _, p := range d.Peers {
		peers = append(peers, PeerSample{
			PublicKey: p.PublicKey.String(),
			Received:  p.ReceiveBytes,
			Sent:      p.TransmitBytes,
		})
	}
	return peers, nil
}

func (g *CtrlGateway) AddPeer(pubKey, allowedIPs string) error {
	key, err := wgtypes.ParseKey(pubKey)
	if err != nil {
		return fmt.Errorf("wg: parse key %s: %w", pubKey, err)
	}
	_, ipnet, err := net.ParseCIDR(allowedIPs)
	if err != nil {
		return fmt.Errorf("wg: parse allowed ips %s: %w", allowedIPs, err)
	}

	c, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("wg: wgctrl client: %w", err)
	}
	defer c.Close()

	err = c.ConfigureDevice(g.iface, wgtypes.Config{
		Peers: []wgtypes.PeerConfig{{
			PublicKey:         key,
			ReplaceAllowedIPs: true,
			AllowedIPs:        []net.IPNet{*ipnet},
		}},
	})
	if err != nil {
		return fmt.Errorf("wg: configure peer %s: %w", pubKey, err)
	}
	g.logger.Info("peer applied to interface", "interface", g.iface, "public_key", pubKey, "allowed_ips", allowedIPs)
	return nil
}

func (g *CtrlGateway) RemovePeer(pubKey string) error {
	key, err := wgtypes.ParseKey(pubKey)
	if err != nil {
		return fmt.Errorf("wg: parse key %s: %w", pubKey, err)
	}

	c, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("wg: wgctrl client: %w", err)
	}
	defer c.Close()

	err = c.ConfigureDevice(g.iface, wgtypes.Config{
		Peers: []wgtypes.PeerConfig{{PublicKey: key, Remove: true}},
	})
	if err != nil {
		return fmt.Errorf("wg: remove peer %s: %w", pubKey, err)
	}
	g.logger.Info("peer removed from interface", "interface", g.iface, "public_key", pubKey)
	return nil
}

func (g *CtrlGateway) PublicKey() (string, error) {
	c, d, err := g.device()
	if err != nil {
		return "", err
	}
	defer c.Close()
	return d.PublicKey.String(), nil
}

func (g *CtrlGateway) ListenPort() (int, error) {
	c, d, err := g.device()
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return d.ListenPort, nil
}
