package structs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigOverrideOutdates(t *testing.T) {
	n := &Node{Image: "registry/runner@sha256:aaaa", CPUMilli: 500, MemoryMB: 512, StorageMB: 10240}

	cases := []struct {
		Name     string
		Override *ConfigOverride
		Expect   bool
	}{
		{
			Name:     "NilOverride",
			Override: nil,
			Expect:   false,
		},
		{
			Name:     "EmptyOverride",
			Override: &ConfigOverride{RoutingID: "g"},
			Expect:   false,
		},
		{
			Name:     "MatchingOverride",
			Override: &ConfigOverride{RoutingID: "g", Image: n.Image, CPUMilli: 500, MemoryMB: 512, StorageMB: 10240},
			Expect:   false,
		},
		{
			Name:     "DifferentImage",
			Override: &ConfigOverride{RoutingID: "g", Image: "registry/runner@sha256:bbbb"},
			Expect:   true,
		},
		{
			Name:     "DifferentCPU",
			Override: &ConfigOverride{RoutingID: "g", CPUMilli: 1000},
			Expect:   true,
		},
		{
			Name:     "DifferentMemory",
			Override: &ConfigOverride{RoutingID: "g", MemoryMB: 1024},
			Expect:   true,
		},
		{
			Name:     "DifferentStorage",
			Override: &ConfigOverride{RoutingID: "g", StorageMB: 20480},
			Expect:   true,
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			assert.Equal(t, c.Expect, c.Override.Outdates(n))
		})
	}
}
