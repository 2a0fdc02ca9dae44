package voice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAvatar(t *testing.T) {
	tests := []struct {
		listening, busy bool
		want            AvatarState
	}{
		{false, false, AvatarIdle},
		{false, true, AvatarTalking},
		{true, false, AvatarListening},
		{true, true, AvatarListening},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveAvatar(tt.listening, tt.busy))
	}
}

func TestAvatarState_Label(t *testing.T) {
	assert.Equal(t, "Siap membantu", AvatarIdle.Label())
	assert.Equal(t, "Mendengarkan...", AvatarListening.Label())
	assert.Equal(t, "Berbicara...", AvatarTalking.Label())
}

func TestNoopCapability(t *testing.T) {
	var c Capability = NoopCapability{}
	assert.False(t, c.Supported())
	assert.NoError(t, c.Speak(context.Background(), "Halo"))
}
