package upgrade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/autopeer-io/agentupgrade/internal/endpoint"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"v4.2.0", true},
		{"v0.0.0", true},
		{"v10.20.300", true},
		{"v04.2.1", true},
		{"", false},
		{"4.2.0", false},
		{"1.2.3", false},
		{"V4.2.0", false},
		{"v4.2", false},
		{"v4.2.0.1", false},
		{"v4.2.x", false},
		{"v4.2.0-rc1", false},
		{"v4.2.0 ", false},
		{" v4.2.0", false},
		{"wazuh v4.2.0", false},
		{"v-1.2.3", false},
		{"latest", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidVersion)
			assert.Contains(t, err.Error(), "Version received: "+tt.version)
		})
	}
}

func TestValidateChunkSize(t *testing.T) {
	tests := []struct {
		size  int
		valid bool
	}{
		{-512, false},
		{-1, false},
		{0, false},
		{1, true},
		{2, true},
		{512, true},
		{63999, true},
		{64000, true},
		{64001, false},
		{70000, false},
	}

	for _, tt := range tests {
		err := ValidateChunkSize(tt.size)
		if tt.valid {
			assert.NoError(t, err, "size %d", tt.size)
			continue
		}
		require.ErrorIs(t, err, ErrInvalidChunkSize, "size %d", tt.size)

		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, CodeInvalidChunkSize, e.Code)
		assert.Equal(t, KindPrecondition, e.Kind)
	}
}

func TestValidateEndpointActive(t *testing.T) {
	tests := []struct {
		name   string
		ep     *endpoint.Endpoint
		active bool
	}{
		{"active", &endpoint.Endpoint{Status: endpoint.StatusActive}, true},
		{"disconnected", &endpoint.Endpoint{Status: endpoint.StatusDisconnected}, false},
		{"pending", &endpoint.Endpoint{Status: endpoint.StatusPending}, false},
		{"never connected", &endpoint.Endpoint{Status: endpoint.StatusNeverConnected}, false},
		{"empty status", &endpoint.Endpoint{}, false},
		{"unknown status", &endpoint.Endpoint{Status: "Active"}, false},
		{"nil endpoint", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpointActive(tt.ep)
			if tt.active {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrEndpointNotActive)
		})
	}
}

func TestValidateOptionalFields(t *testing.T) {
	ep := activeEndpoint(epoch)

	assert.NoError(t, Validate(ep, &Request{}))
	assert.NoError(t, Validate(ep, &Request{Version: ptr.To("v4.2.0"), ChunkSize: ptr.To(64000)}))
	assert.ErrorIs(t, Validate(ep, &Request{Version: ptr.To("")}), ErrInvalidVersion)
	assert.ErrorIs(t, Validate(ep, &Request{ChunkSize: ptr.To(0)}), ErrInvalidChunkSize)
}

func TestValidateCheckOrder(t *testing.T) {
	inactive := activeEndpoint(epoch)
	inactive.Status = endpoint.StatusDisconnected

	req := &Request{Version: ptr.To("4.2.0"), ChunkSize: ptr.To(70000)}

	assert.ErrorIs(t, Validate(inactive, req), ErrEndpointNotActive)
	assert.ErrorIs(t, Validate(activeEndpoint(epoch), req), ErrInvalidVersion)

	req.Version = ptr.To("v4.2.0")
	assert.ErrorIs(t, Validate(activeEndpoint(epoch), req), ErrInvalidChunkSize)
}

func TestValidateIsRepeatable(t *testing.T) {
	ep := activeEndpoint(epoch)
	inputs := []*Request{
		{},
		{Version: ptr.To("v1.2.3")},
		{Version: ptr.To("1.2.3")},
		{ChunkSize: ptr.To(70000)},
	}

	for _, req := range inputs {
		first := Validate(ep, req)
		second := Validate(ep, req)
		assert.Equal(t, first == nil, second == nil)
		if first != nil {
			assert.ErrorIs(t, second, first)
		}
	}
}

func TestCheck(t *testing.T) {
	active := func(n int) (*endpoint.Endpoint, error) { return activeEndpoint(epoch), nil }
	disconnected := func(n int) (*endpoint.Endpoint, error) {
		ep := activeEndpoint(epoch)
		ep.Status = endpoint.StatusDisconnected
		return ep, nil
	}
	missing := func(n int) (*endpoint.Endpoint, error) { return nil, endpoint.ErrNotFound }
	broken := func(n int) (*endpoint.Endpoint, error) { return nil, errors.New("disk I/O error") }

	tests := []struct {
		name   string
		script func(n int) (*endpoint.Endpoint, error)
		req    *Request
		want   error
	}{
		{"valid", active, &Request{AgentID: "001", Version: ptr.To("v4.2.0")}, nil},
		{"chunk too large", active, &Request{AgentID: "001", ChunkSize: ptr.To(70000)}, ErrInvalidChunkSize},
		{"version without v", active, &Request{AgentID: "001", Version: ptr.To("1.2.3")}, ErrInvalidVersion},
		{"agent not active", disconnected, &Request{AgentID: "001"}, ErrEndpointNotActive},
		{"agent missing", missing, &Request{AgentID: "001"}, ErrEndpointNotFound},
		{"registry failure", broken, &Request{AgentID: "001"}, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &scriptedReader{script: tt.script}
			ep, err := Check(context.Background(), reader, tt.req)

			assert.Equal(t, 1, reader.Calls())
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, "001", ep.ID)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, ep)
		})
	}
}
