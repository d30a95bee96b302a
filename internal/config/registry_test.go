package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/voxdesk/pkg/provider/llm/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxdesk/pkg/provider/tts/mock"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, errors.New("no voice")
	})
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "fake", Model: "m1"}); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got.Model != "m1" {
		t.Errorf("factory got %+v", got)
	}

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v, want factory error", err)
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "energy"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD err = %v", err)
	}

	if names := reg.Names("tts"); !slices.Equal(names, []string{"broken", "fake"}) {
		t.Errorf("Names(tts) = %v", names)
	}
	if names := reg.Names("nope"); len(names) != 0 {
		t.Errorf("Names(nope) = %v", names)
	}
}
