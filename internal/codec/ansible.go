package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"netcrawler/internal/domain"
)

// AnsibleCodec exports the reachable devices of a crawl as an Ansible
// inventory, grouped by OS family
type AnsibleCodec struct{}

// NewAnsibleCodec creates a new Ansible codec
func NewAnsibleCodec() *AnsibleCodec {
	return &AnsibleCodec{}
}

// Format returns the codec format identifier
func (c *AnsibleCodec) Format() string {
	return "ansible-inventory"
}

// ansibleInventory represents the Ansible inventory structure
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
	Vars  map[string]interface{} `yaml:"vars,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string `yaml:"ansible_host,omitempty"`
	Platform    string `yaml:"platform,omitempty"`
	Depth       int    `yaml:"crawl_depth"`
}

// networkOS maps OS families to Ansible collection network_os values
var networkOS = map[domain.OSFamily]string{
	domain.OSCiscoIOS:     "cisco.ios.ios",
	domain.OSCiscoNXOS:    "cisco.nxos.nxos",
	domain.OSCiscoXR:      "cisco.iosxr.iosxr",
	domain.OSCiscoASA:     "cisco.asa.asa",
	domain.OSJuniperJunos: "junipernetworks.junos.junos",
	domain.OSAristaEOS:    "arista.eos.eos",
}

// groupVars returns the connection vars for an OS family group
func groupVars(family domain.OSFamily) map[string]interface{} {
	if nos, ok := networkOS[family]; ok {
		return map[string]interface{}{
			"ansible_connection": "ansible.netcommon.network_cli",
			"ansible_network_os": nos,
		}
	}
	if family == domain.OSLinux {
		return map[string]interface{}{"ansible_connection": "ssh"}
	}
	return nil
}

// Export writes connected and expanded nodes; denied, failed and pending
// nodes are left out since nothing could log in to them
func (c *AnsibleCodec) Export(graph *domain.TopologyGraph, w io.Writer) error {
	inv := ansibleInventory{
		All: ansibleGroup{
			Children: make(map[string]ansibleGroupDef),
		},
	}

	for _, node := range graph.SortedNodes() {
		if node.Status != domain.NodeStatusConnected && node.Status != domain.NodeStatusExpanded {
			continue
		}

		family := node.OSFamily
		if family == "" {
			family = domain.OSUnknown
		}
		groupName := string(family)

		group, ok := inv.All.Children[groupName]
		if !ok {
			group = ansibleGroupDef{
				Hosts: make(map[string]ansibleHost),
				Vars:  groupVars(family),
			}
		}
		group.Hosts[node.Hostname] = ansibleHost{
			AnsibleHost: node.Address,
			Platform:    node.Platform,
			Depth:       node.Depth,
		}
		inv.All.Children[groupName] = group
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode Ansible inventory: %w", err)
	}

	return nil
}
