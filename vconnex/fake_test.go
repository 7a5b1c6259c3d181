package vconnex

import (
	"context"
	"errors"
	"sync"
)

type sentCommand struct {
	DeviceID string
	Command  string
	Values   map[string]any
}

type fakeManager struct {
	devices     map[string]Device
	panicOn     string
	failOn      string
	initErr     error
	initialized bool
	released    bool
	listeners   []Listener
	sent        []sentCommand
	sync.Mutex
}

func newFakeManager(devices ...Device) *fakeManager {
	m := &fakeManager{devices: map[string]Device{}}
	for _, d := range devices {
		m.devices[d.DeviceID] = d
	}
	return m
}

func (m *fakeManager) Initialize(ctx context.Context) error {
	m.Lock()
	defer m.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *fakeManager) IsInitialized() bool {
	m.Lock()
	defer m.Unlock()
	return m.initialized
}

func (m *fakeManager) Release() error {
	m.Lock()
	defer m.Unlock()
	m.released = true
	return nil
}

func (m *fakeManager) DeviceMap() map[string]Device {
	m.Lock()
	defer m.Unlock()
	out := map[string]Device{}
	for k, v := range m.devices {
		out[k] = v
	}
	return out
}

func (m *fakeManager) Device(id string) (Device, bool) {
	m.Lock()
	defer m.Unlock()
	d, ok := m.devices[id]
	return d, ok
}

// put replaces the snapshot of a device.
func (m *fakeManager) put(d Device) {
	m.Lock()
	defer m.Unlock()
	m.devices[d.DeviceID] = d
}

func (m *fakeManager) drop(id string) {
	m.Lock()
	defer m.Unlock()
	delete(m.devices, id)
}

func (m *fakeManager) SendCommand(ctx context.Context, id, command string, values map[string]any) error {
	if id == m.panicOn {
		panic("sdk exploded")
	}
	if id == m.failOn {
		return errors.New("device offline")
	}
	m.Lock()
	defer m.Unlock()
	m.sent = append(m.sent, sentCommand{DeviceID: id, Command: command, Values: values})
	return nil
}

func (m *fakeManager) commands() []sentCommand {
	m.Lock()
	defer m.Unlock()
	return append([]sentCommand(nil), m.sent...)
}

func (m *fakeManager) AddListener(l Listener) {
	m.Lock()
	defer m.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *fakeManager) RemoveListener(l Listener) {
	m.Lock()
	defer m.Unlock()
	for i, v := range m.listeners {
		if v == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *fakeManager) listener() Listener {
	m.Lock()
	defer m.Unlock()
	return m.listeners[0]
}

func (m *fakeManager) listenerCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.listeners)
}

type fakeSDK struct {
	valid    bool
	validErr error
	token    TokenData
	tokenErr error
	manager  *fakeManager
	sync.Mutex
	apiCalls int
}

func (s *fakeSDK) NewAPI(endpoint, clientID, clientSecret, projectCode string) (API, error) {
	s.Lock()
	defer s.Unlock()
	s.apiCalls++
	return &fakeAPI{sdk: s}, nil
}

func (s *fakeSDK) NewDeviceManager(api API) DeviceManager {
	return s.manager
}

func (s *fakeSDK) calls() int {
	s.Lock()
	defer s.Unlock()
	return s.apiCalls
}

type fakeAPI struct {
	sdk *fakeSDK
}

func (a *fakeAPI) IsValid(ctx context.Context) (bool, error) {
	return a.sdk.valid, a.sdk.validErr
}

func (a *fakeAPI) TokenData(ctx context.Context) (TokenData, error) {
	return a.sdk.token, a.sdk.tokenErr
}

func getData(values ...ParamValue) map[string]DeviceData {
	return map[string]DeviceData{CommandGetData: {DevV: values}}
}

func switchDevice(id string) Device {
	return Device{
		DeviceID:       id,
		Name:           "Hall switch",
		DeviceTypeCode: 3012,
		DeviceTypeName: "Switch 2 gang",
		Version:        "1.2",
		Params: []ParamInfo{
			{Key: "sw1", Name: "Hall light", Type: ParamTypeOnOff},
			{Key: "sw2", Type: ParamTypeOnOff},
			{Key: "led", Name: "Backlight level", Type: ParamTypeRawValue},
		},
		Data: getData(ParamValue{Param: "sw1", Value: 1}, ParamValue{Param: "sw2", Value: 0}),
	}
}

func climateDevice(id string) Device {
	return Device{
		DeviceID:       id,
		Name:           "Bedroom",
		DeviceTypeCode: 3020,
		Params: []ParamInfo{
			{Key: "temp", Name: "Bedroom temperature"},
			{Key: "humi", Name: "Bedroom humidity"},
		},
		Data: getData(ParamValue{Param: "temp", Value: 21.5}, ParamValue{Param: "humi", Value: 40}),
	}
}
