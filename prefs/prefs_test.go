package prefs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memItems struct {
	data    map[string][]byte
	saves   int
	loadErr error
}

func (m *memItems) LoadItem(key string) ([]byte, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[key], nil
}

func (m *memItems) SaveItem(key string, data []byte) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = data
	m.saves++
	return nil
}

func newStore() (*Store, *memItems) {
	items := &memItems{}
	return &Store{items: items, logger: zap.NewNop()}, items
}

func TestLoadEmpty(t *testing.T) {
	s, _ := newStore()
	p, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Prefs{}, p)
}

func TestIdentityGeneratesOnce(t *testing.T) {
	s, items := newStore()

	first, err := s.Identity("")
	require.NoError(t, err)
	assert.NotEmpty(t, first.PlayerID)
	assert.Equal(t, "Chef-"+first.PlayerID[:4], first.PlayerName)

	again, err := s.Identity("")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, items.saves)
}

func TestIdentityRenames(t *testing.T) {
	s, _ := newStore()
	first, err := s.Identity("Ann")
	require.NoError(t, err)

	renamed, err := s.Identity("Bo")
	require.NoError(t, err)
	assert.Equal(t, first.PlayerID, renamed.PlayerID)
	assert.Equal(t, "Bo", renamed.PlayerName)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, renamed, loaded)
}

func TestIdentityRecoversFromBadData(t *testing.T) {
	s, items := newStore()
	items.data = map[string][]byte{itemKey: []byte("{")}

	_, err := s.Load()
	require.Error(t, err)

	p, err := s.Identity("Ann")
	require.NoError(t, err)
	assert.NotEmpty(t, p.PlayerID)

	items.loadErr = errors.New("disk gone")
	_, err = s.Load()
	assert.Error(t, err)
}

func TestEphemeral(t *testing.T) {
	p := Ephemeral("")
	assert.NotEmpty(t, p.PlayerID)
	assert.Equal(t, "Chef-"+p.PlayerID[:4], p.PlayerName)
	assert.Equal(t, "Ann", Ephemeral("Ann").PlayerName)
}
