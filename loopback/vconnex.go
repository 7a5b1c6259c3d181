package loopback

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/XANi/hassbridge/vconnex"
	"go.uber.org/zap"
)

var ErrUnknownDevice = errors.New("unknown device")
var ErrUnauthorized = errors.New("unauthorized")

// VconnexSDK accepts the credentials of fixture accounts.
type VconnexSDK struct {
	fixture VconnexFixture
	log     *zap.SugaredLogger
}

func NewVconnexSDK(log *zap.SugaredLogger, f VconnexFixture) *VconnexSDK {
	return &VconnexSDK{fixture: f, log: log}
}

func (s *VconnexSDK) NewAPI(endpoint, clientID, clientSecret, projectCode string) (vconnex.API, error) {
	s.log.Debugf("api for %s at %s, project %s", clientID, endpoint, projectCode)
	for i, a := range s.fixture.Accounts {
		if a.ClientID == clientID && a.ClientSecret == clientSecret {
			return &vconnexAPI{account: &s.fixture.Accounts[i]}, nil
		}
	}
	return &vconnexAPI{}, nil
}

func (s *VconnexSDK) NewDeviceManager(api vconnex.API) vconnex.DeviceManager {
	var account *VconnexAccount
	if a, ok := api.(*vconnexAPI); ok {
		account = a.account
	}
	return &DeviceManager{
		account: account,
		devices: map[string]vconnex.Device{},
		log:     s.log.Named("devices"),
	}
}

type vconnexAPI struct {
	account *VconnexAccount
}

func (a *vconnexAPI) IsValid(ctx context.Context) (bool, error) {
	return a.account != nil, nil
}

func (a *vconnexAPI) TokenData(ctx context.Context) (vconnex.TokenData, error) {
	if a.account == nil {
		return nil, ErrUnauthorized
	}
	return vconnex.TokenData{
		vconnex.TokenUserID:      a.account.UserID,
		vconnex.TokenProjectName: a.account.ProjectName,
	}, nil
}

// DeviceManager keeps fixture devices as immutable snapshots; every change
// stores a new copy and notifies listeners after the lock is released.
type DeviceManager struct {
	account     *VconnexAccount
	devices     map[string]vconnex.Device
	listeners   []vconnex.Listener
	initialized bool
	log         *zap.SugaredLogger
	sync.RWMutex
}

func (m *DeviceManager) Initialize(ctx context.Context) error {
	if m.account == nil {
		return ErrUnauthorized
	}
	m.Lock()
	defer m.Unlock()
	for _, d := range m.account.Devices {
		m.devices[d.DeviceID] = cloneDevice(d)
	}
	m.initialized = true
	m.log.Infof("loaded %d devices of %s", len(m.devices), m.account.ProjectName)
	return nil
}

func (m *DeviceManager) IsInitialized() bool {
	m.RLock()
	defer m.RUnlock()
	return m.initialized
}

func (m *DeviceManager) Release() error {
	m.Lock()
	defer m.Unlock()
	m.initialized = false
	m.listeners = nil
	return nil
}

func (m *DeviceManager) DeviceMap() map[string]vconnex.Device {
	m.RLock()
	defer m.RUnlock()
	return maps.Clone(m.devices)
}

func (m *DeviceManager) Device(id string) (vconnex.Device, bool) {
	m.RLock()
	defer m.RUnlock()
	d, ok := m.devices[id]
	return d, ok
}

func (m *DeviceManager) AddListener(l vconnex.Listener) {
	m.Lock()
	defer m.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *DeviceManager) RemoveListener(l vconnex.Listener) {
	m.Lock()
	defer m.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(v vconnex.Listener) bool { return v == l })
}

func (m *DeviceManager) currentListeners() []vconnex.Listener {
	m.RLock()
	defer m.RUnlock()
	return slices.Clone(m.listeners)
}

// SendCommand applies CmdSetData values to the device data and answers
// CmdGetData with a data push.
func (m *DeviceManager) SendCommand(ctx context.Context, deviceID, command string, values map[string]any) error {
	m.Lock()
	if !m.initialized {
		m.Unlock()
		return vconnex.ErrNotInitialized
	}
	d, ok := m.devices[deviceID]
	if !ok {
		m.Unlock()
		return fmt.Errorf("%s: %w", deviceID, ErrUnknownDevice)
	}
	switch command {
	case vconnex.CommandGetData:
	case vconnex.CommandSetData:
		d = withValues(d, values)
		m.devices[deviceID] = d
	default:
		m.Unlock()
		return fmt.Errorf("unsupported command %s", command)
	}
	m.Unlock()
	msg := map[string]any{"name": vconnex.CommandGetData, "devV": d.Data[vconnex.CommandGetData].DevV}
	for _, l := range m.currentListeners() {
		l.OnDeviceDataUpdate(deviceID, msg)
	}
	return nil
}

// AddDevice simulates a device paired while running.
func (m *DeviceManager) AddDevice(d vconnex.Device) {
	m.Lock()
	m.devices[d.DeviceID] = cloneDevice(d)
	m.Unlock()
	for _, l := range m.currentListeners() {
		l.OnDeviceAdded(d)
	}
}

// UpdateDevice replaces device metadata, keeping its data.
func (m *DeviceManager) UpdateDevice(d vconnex.Device) error {
	m.Lock()
	old, ok := m.devices[d.DeviceID]
	if !ok {
		m.Unlock()
		return fmt.Errorf("%s: %w", d.DeviceID, ErrUnknownDevice)
	}
	d = cloneDevice(d)
	d.Data = old.Data
	m.devices[d.DeviceID] = d
	m.Unlock()
	for _, l := range m.currentListeners() {
		l.OnDeviceUpdate(d, old)
	}
	return nil
}

func (m *DeviceManager) RemoveDevice(id string) error {
	m.Lock()
	d, ok := m.devices[id]
	delete(m.devices, id)
	m.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownDevice)
	}
	for _, l := range m.currentListeners() {
		l.OnDeviceRemoved(d)
	}
	return nil
}

func cloneDevice(d vconnex.Device) vconnex.Device {
	d.Params = slices.Clone(d.Params)
	data := make(map[string]vconnex.DeviceData, len(d.Data))
	for name, msg := range d.Data {
		data[name] = vconnex.DeviceData{DevV: slices.Clone(msg.DevV)}
	}
	d.Data = data
	return d
}

// withValues returns a copy of d with values written into CmdGetData.
func withValues(d vconnex.Device, values map[string]any) vconnex.Device {
	d = cloneDevice(d)
	msg := d.Data[vconnex.CommandGetData]
	for _, param := range slices.Sorted(maps.Keys(values)) {
		i := slices.IndexFunc(msg.DevV, func(v vconnex.ParamValue) bool { return v.Param == param })
		if i < 0 {
			msg.DevV = append(msg.DevV, vconnex.ParamValue{Param: param, Value: values[param]})
			continue
		}
		msg.DevV[i].Value = values[param]
	}
	d.Data[vconnex.CommandGetData] = msg
	return d
}
