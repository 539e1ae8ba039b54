package ai

import (
	"context"
	"testing"

	"dify_cli/pkg/config"
)

type stubProvider struct{}

func (stubProvider) Send(ctx context.Context, q Query) (Reply, error) { return Reply{}, nil }
func (stubProvider) Stream(ctx context.Context, q Query) (Stream, error) {
	return nil, ErrUnsupported
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("expected registry, got nil")
	}
	if r.factories == nil {
		t.Fatal("expected factories map, got nil")
	}
	if r.info == nil {
		t.Fatal("expected info map, got nil")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	info := ProviderInfo{
		Type:        "test-provider",
		Name:        "Test Provider",
		Description: "A test provider",
		RequiresKey: true,
	}

	r.Register(info, func(cfg ProviderConfig) (Provider, error) {
		return stubProvider{}, nil
	})

	if !r.IsRegistered("test-provider") {
		t.Fatal("expected provider to be registered")
	}

	p, err := r.GetProvider(ProviderConfig{Type: "test-provider"})
	if err != nil {
		t.Fatalf("GetProvider() error: %v", err)
	}
	if _, ok := p.(stubProvider); !ok {
		t.Fatalf("expected stubProvider, got %T", p)
	}
}

func TestRegistry_GetProvider_UnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetProvider(ProviderConfig{Type: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}

func TestRegistry_ListProvidersSorted(t *testing.T) {
	r := NewRegistry()

	r.Register(ProviderInfo{Type: "zeta", Name: "Zeta"}, func(cfg ProviderConfig) (Provider, error) { return nil, nil })
	r.Register(ProviderInfo{Type: "alpha", Name: "Alpha"}, func(cfg ProviderConfig) (Provider, error) { return nil, nil })

	providers := r.ListProviders()
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(providers))
	}
	if providers[0].Type != "alpha" || providers[1].Type != "zeta" {
		t.Fatalf("expected sorted providers, got %v", providers)
	}
}

func TestGetProviderFromConfig_PassesConfig(t *testing.T) {
	orig := DefaultRegistry
	defer func() { DefaultRegistry = orig }()
	DefaultRegistry = NewRegistry()

	var got ProviderConfig
	RegisterProvider(ProviderInfo{Type: ProviderDify, Name: "Dify"}, func(cfg ProviderConfig) (Provider, error) {
		got = cfg
		return stubProvider{}, nil
	})

	cfg := config.Default()
	cfg.LLMProvider = ""
	cfg.Dify.APIKey = "app-key"

	if _, err := GetProviderFromConfig(cfg); err != nil {
		t.Fatalf("GetProviderFromConfig() error: %v", err)
	}
	if got.Type != ProviderDify {
		t.Fatalf("expected empty provider to default to dify, got %q", got.Type)
	}
	if got.Config.Dify.APIKey != "app-key" {
		t.Fatalf("expected config to be forwarded, got %q", got.Config.Dify.APIKey)
	}
}
