// Package loopback implements the vendor SDK interfaces on top of a YAML
// fixture, so the bridge can run without real hubs or cloud accounts.
// Commands change the fixture state in memory and are echoed back as push
// updates the way the cloud would.
package loopback

import (
	"fmt"
	"os"

	"github.com/XANi/hassbridge/bond"
	"github.com/XANi/hassbridge/vconnex"
	"github.com/goccy/go-yaml"
)

type Fixture struct {
	Vconnex VconnexFixture `yaml:"vconnex"`
	Bond    BondFixture    `yaml:"bond"`
}

type VconnexFixture struct {
	Accounts []VconnexAccount `yaml:"accounts"`
}

type VconnexAccount struct {
	ClientID     string           `yaml:"client_id"`
	ClientSecret string           `yaml:"client_secret"`
	UserID       string           `yaml:"user_id"`
	ProjectName  string           `yaml:"project_name"`
	Devices      []vconnex.Device `yaml:"devices"`
}

type BondFixture struct {
	Hubs []BondHub `yaml:"hubs"`
}

type BondHub struct {
	Host    string                      `yaml:"host"`
	Token   string                      `yaml:"token"`
	Devices []bond.Device               `yaml:"devices"`
	State   map[string]bond.DeviceState `yaml:"state"`
}

func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return &f, nil
}
