//go:build linux

package advert

import (
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	bleadv "github.com/go-ble/ble/linux/adv"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// Advertising PDU types (Bluetooth Core Vol 6, Part B, 2.3).
const (
	advTypeConnectable    = 0x00 // ADV_IND
	advTypeNonConnectable = 0x03 // ADV_NONCONN_IND

	advChannelsAll = 0x07
)

// HCIAdvertiser advertises through a local HCI controller (hciN) using raw
// HCI commands, bypassing BlueZ's advertising manager.
type HCIAdvertiser struct {
	mu     sync.Mutex
	dev    *linux.Device
	name   string
	active bool
}

// NewHCIAdvertiser opens HCI device hci<id>. The name is only broadcast when
// an Advertisement has ShowName set.
func NewHCIAdvertiser(id int, name string) (*HCIAdvertiser, error) {
	dev, err := linux.NewDevice(ble.OptDeviceID(id))
	if err != nil {
		return nil, fmt.Errorf("open hci%d: %w", id, err)
	}
	return &HCIAdvertiser{dev: dev, name: name}, nil
}

// Set stops any running advertisement, applies the new parameters and data,
// and starts advertising again.
func (a *HCIAdvertiser) Set(ad Advertisement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.dev.HCI
	if a.active {
		if err := h.StopAdvertising(); err != nil {
			return fmt.Errorf("stop advertising: %w", err)
		}
		a.active = false
	}

	if err := h.SetAdvParams(advParams(ad)); err != nil {
		return fmt.Errorf("set advertising params: %w", err)
	}

	pkt, err := bleadv.NewPacket(
		bleadv.Flags(bleadv.FlagGeneralDiscoverable|bleadv.FlagLEOnly),
		bleadv.ManufacturerData(ad.ManufacturerID, ad.Data.Bytes()),
	)
	if err != nil {
		return fmt.Errorf("build advertising packet: %w", err)
	}

	var scanResp []byte
	if ad.ShowName && a.name != "" {
		sr, err := bleadv.NewPacket(bleadv.CompleteName(a.name))
		if err != nil {
			return fmt.Errorf("build scan response: %w", err)
		}
		scanResp = sr.Bytes()
	}

	if err := h.SetAdvertisement(pkt.Bytes(), scanResp); err != nil {
		return fmt.Errorf("set advertising data: %w", err)
	}
	if err := h.Advertise(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	a.active = true
	return nil
}

// Close stops advertising and shuts down the HCI device.
func (a *HCIAdvertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.active {
		if err := a.dev.HCI.StopAdvertising(); err != nil {
			errs = append(errs, fmt.Errorf("stop advertising: %w", err))
		}
		a.active = false
	}
	if err := a.dev.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop device: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func advParams(ad Advertisement) cmd.LESetAdvertisingParameters {
	units := IntervalUnits(ad.Interval)
	typ := uint8(advTypeNonConnectable)
	if ad.Connectable {
		typ = advTypeConnectable
	}
	return cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: units,
		AdvertisingIntervalMax: units,
		AdvertisingType:        typ,
		AdvertisingChannelMap:  advChannelsAll,
	}
}
