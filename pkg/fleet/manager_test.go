package fleet

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/quayside/flotilla/internal/mocks/pkg/fleet_mock"
	"github.com/quayside/flotilla/pkg/errors"
	"github.com/quayside/flotilla/pkg/structs"
)

var (
	testDigest = strings.Repeat("ab", 32)
	testImage  = "registry/runner@sha256:" + testDigest
)

func TestRolloutInvalidImage(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())

	cases := []struct {
		Name  string
		Image string
	}{
		{Name: "NoDigest", Image: "registry/runner:latest"},
		{Name: "ShortDigest", Image: "registry/runner@sha256:abcd"},
		{Name: "Empty", Image: ""},
		{Name: "BadAlgorithm", Image: "registry/runner@md5:" + testDigest},
		{Name: "Uppercase", Image: "Registry/Runner@sha256:" + testDigest},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			_, err := m.Rollout(context.Background(), c.Image)
			assert.ErrorIs(t, err, errors.ErrInvalidImage)
		})
	}
}

func TestRolloutImageNotFound(t *testing.T) {
	registry := fleet_mock.NewMockImageRegistry(gomock.NewController(t))
	m := NewManager(nil, registry, zerolog.Nop())

	registry.EXPECT().Exists(gomock.Any(), testImage).Return(false, nil)

	_, err := m.Rollout(context.Background(), testImage)

	assert.ErrorIs(t, err, errors.ErrImageNotFound)
}

func TestRolloutRegistryError(t *testing.T) {
	registry := fleet_mock.NewMockImageRegistry(gomock.NewController(t))
	m := NewManager(nil, registry, zerolog.Nop())

	registry.EXPECT().Exists(gomock.Any(), testImage).Return(false, assert.AnError)

	_, err := m.Rollout(context.Background(), testImage)

	assert.ErrorIs(t, err, assert.AnError)
}

func TestRolloutNoRegistryConfigured(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())

	_, err := m.Rollout(context.Background(), testImage)

	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}

func TestRollout(t *testing.T) {
	registry := fleet_mock.NewMockImageRegistry(gomock.NewController(t))
	db := &fleetDB{createDeployment: func(image string) (*structs.Deployment, error) {
		return &structs.Deployment{ID: 7, Image: image}, nil
	}}
	m := NewManager(db, registry, zerolog.Nop())

	registry.EXPECT().Exists(gomock.Any(), testImage).Return(true, nil)

	d, err := m.Rollout(context.Background(), testImage)

	assert.Nil(t, err)
	assert.Equal(t, int64(7), d.ID)
	assert.Equal(t, testImage, d.Image)
}

func TestSetConfigOverrideValidation(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())

	cases := []struct {
		Name     string
		Override *structs.ConfigOverride
		Expect   error
	}{
		{
			Name:     "NoRoutingID",
			Override: &structs.ConfigOverride{CPUMilli: 1000},
			Expect:   errors.ErrInvalidArg,
		},
		{
			Name:     "BadImage",
			Override: &structs.ConfigOverride{RoutingID: "g", Image: "runner:latest"},
			Expect:   errors.ErrInvalidImage,
		},
		{
			Name:     "NegativeCPU",
			Override: &structs.ConfigOverride{RoutingID: "g", CPUMilli: -1},
			Expect:   errors.ErrInvalidArg,
		},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			_, err := m.SetConfigOverride(context.Background(), c.Override)
			assert.ErrorIs(t, err, c.Expect)
		})
	}
}

func TestSetConfigOverride(t *testing.T) {
	var saved *structs.ConfigOverride
	db := &fleetDB{upsertConfigOverride: func(o *structs.ConfigOverride) (*structs.ConfigOverride, error) {
		saved = o
		return o, nil
	}}
	m := NewManager(db, nil, zerolog.Nop())

	o, err := m.SetConfigOverride(context.Background(), &structs.ConfigOverride{
		RoutingID: "g", Image: testImage, MemoryMB: 2048,
	})

	assert.Nil(t, err)
	assert.Equal(t, saved, o)
	assert.Equal(t, int64(2048), o.MemoryMB)
}

func TestRemoveConfigOverrideRequiresRoutingID(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())

	err := m.RemoveConfigOverride(context.Background(), "")

	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}

func TestRegisterRequiresURL(t *testing.T) {
	m := NewManager(nil, nil, zerolog.Nop())

	_, err := m.Register(context.Background(), 1, "")

	assert.ErrorIs(t, err, errors.ErrInvalidArg)
}
