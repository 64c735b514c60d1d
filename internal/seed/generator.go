// ABOUTME: Fixture generator for the mock management API.
// ABOUTME: Uses OpenAI to name clusters and hosts when a key is configured, static data otherwise.

package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Generator creates cluster fixtures using OpenAI or falls back to static data.
type Generator struct {
	client *openai.Client
	useAI  bool
	model  string
}

// NewGenerator creates a generator. An empty apiKey selects static data.
func NewGenerator(apiKey, model string) *Generator {
	g := &Generator{model: model}
	if g.model == "" {
		g.model = "gpt-5-mini"
	}

	if apiKey != "" {
		g.client = openai.NewClient(apiKey)
		g.useAI = true
		zap.S().Infof("OpenAI API key found, naming fixtures with model %s", g.model)
	} else {
		zap.S().Info("No OPENAI_API_KEY found, using static fixture data")
	}
	return g
}

// ClusterData describes one cluster to seed
type ClusterData struct {
	Name            string     `json:"name"`
	Zone            string     `json:"zone"`
	Pod             string     `json:"pod"`
	Hypervisor      string     `json:"hypervisor"`
	Arch            string     `json:"arch"`
	AllocationState string     `json:"allocation_state"`
	ManagedState    string     `json:"managed_state"`
	OOBMEnabled     bool       `json:"oobm_enabled"`
	HAEnabled       bool       `json:"ha_enabled"`
	Hosts           []HostData `json:"hosts"`
}

// HostData describes one host in a seeded cluster
type HostData struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	State     string `json:"state"`
	CPUMHz    int64  `json:"cpu_mhz"`
	CPUUsed   int64  `json:"cpu_used_mhz"`
	MemoryMB  int64  `json:"memory_mb"`
	MemUsed   int64  `json:"memory_used_mb"`
}

var hypervisors = map[string]bool{
	"KVM": true, "VMware": true, "XenServer": true, "Hyperv": true, "Simulator": true, "External": true,
}

// Generate returns count clusters. AI output that fails validation falls back to static data.
func (g *Generator) Generate(ctx context.Context, count int) []ClusterData {
	if count <= 0 {
		return nil
	}
	if !g.useAI {
		return generateStatic(count)
	}

	zap.S().Infof("Generating %d clusters via AI...", count)
	clusters, err := g.generateClusters(ctx, count)
	if err == nil {
		err = validate(clusters)
	}
	if err != nil {
		zap.S().Warnf("AI generation failed (%v), falling back to static data", err)
		return generateStatic(count)
	}
	return clusters
}

func (g *Generator) generateClusters(ctx context.Context, count int) ([]ClusterData, error) {
	prompt := fmt.Sprintf(`Generate %d realistic compute clusters for a private cloud. Include:
- Clusters spread across 2 zones, each zone with 1-2 pods
- Mostly KVM and VMware clusters, one External cluster
- One cluster with allocation_state Disabled, the rest Enabled
- One cluster with managed_state Unmanaged, the rest Managed
- Some clusters with oobm_enabled and ha_enabled true
- 2-4 hosts per cluster with private IPv4 addresses

Return as JSON array with objects containing: name, zone, pod, hypervisor, arch (x86_64 or aarch64),
allocation_state, managed_state, oobm_enabled, ha_enabled, hosts (array of objects with name,
ip_address, state (Up or Down), cpu_mhz, cpu_used_mhz, memory_mb, memory_used_mb).
Cluster names must be unique. Used values must not exceed totals.`, count)

	return callOpenAI[[]ClusterData](ctx, g.client, g.model, prompt)
}

func validate(clusters []ClusterData) error {
	if len(clusters) == 0 {
		return fmt.Errorf("no clusters generated")
	}
	seen := make(map[string]bool)
	for _, c := range clusters {
		name := strings.TrimSpace(c.Name)
		if name == "" || seen[name] {
			return fmt.Errorf("missing or duplicate cluster name %q", c.Name)
		}
		seen[name] = true
		if !hypervisors[c.Hypervisor] {
			return fmt.Errorf("cluster %s: unknown hypervisor %q", c.Name, c.Hypervisor)
		}
		if c.Zone == "" || c.Pod == "" {
			return fmt.Errorf("cluster %s: zone and pod are required", c.Name)
		}
		for _, h := range c.Hosts {
			if h.CPUUsed > h.CPUMHz || h.MemUsed > h.MemoryMB {
				return fmt.Errorf("host %s: usage exceeds capacity", h.Name)
			}
		}
	}
	return nil
}

func callOpenAI[T any](ctx context.Context, client *openai.Client, model, prompt string) (T, error) {
	var result T

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a data generator. Always respond with valid JSON only, no markdown or explanation.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return result, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return result, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return result, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return result, nil
}
