package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmux/gateway/internal/model"
)

func TestMultiDialer_RoutesStdioTransportToStdioDialer(t *testing.T) {
	d := &MultiDialer{Stdio: &StdioDialer{}, HTTP: &HTTPDialer{}}
	srv := model.InstalledServer{ID: "srv_1", Transport: model.TransportStdio}

	_, err := d.Dial(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command configured")
}

func TestMultiDialer_RoutesHTTPTransportToHTTPDialer(t *testing.T) {
	d := &MultiDialer{Stdio: &StdioDialer{}, HTTP: &HTTPDialer{}}
	srv := model.InstalledServer{ID: "srv_1", Transport: model.TransportHTTP}

	_, err := d.Dial(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url configured")
}

func TestMultiDialer_RoutesSSETransportToHTTPDialer(t *testing.T) {
	d := &MultiDialer{Stdio: &StdioDialer{}, HTTP: &HTTPDialer{}}
	srv := model.InstalledServer{ID: "srv_1", Transport: model.TransportSSE}

	_, err := d.Dial(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url configured")
}

func TestMultiDialer_UnknownTransportIsAnError(t *testing.T) {
	d := &MultiDialer{Stdio: &StdioDialer{}, HTTP: &HTTPDialer{}}
	srv := model.InstalledServer{ID: "srv_1", Transport: model.Transport("carrier-pigeon")}

	_, err := d.Dial(context.Background(), srv)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown transport"))
}
