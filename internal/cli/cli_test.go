package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hedeqiang/telreg"
	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/internal/config"
	"github.com/hedeqiang/telreg/internal/server"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	chdir(t, t.TempDir())

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newTestServer(t *testing.T) (*telreg.Registry, string) {
	t.Helper()
	sticky := broadcast.NewSticky(nil)
	reg := telreg.New(telreg.WithSink(sticky), telreg.WithChecker(capability.AllowAll))
	srv := httptest.NewServer(server.New(server.Config{Registry: reg, Sticky: sticky}).Handler())
	t.Cleanup(srv.Close)
	return reg, srv.URL
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "telreg "+Version))
}

func TestHashToken(t *testing.T) {
	out, err := run(t, "hash-token", "secret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("secret")))
}

func TestNotifyAndSticky(t *testing.T) {
	reg, url := newTestServer(t)

	_, err := run(t, "--server", url, "notify", "call_state", "--state", "RINGING", "--number", "555")
	require.NoError(t, err)
	_, err = run(t, "--server", url, "notify", "signal_strength", "--asu", "19")
	require.NoError(t, err)
	_, err = run(t, "--server", url, "notify", "cell_location", "--cell", "lac=4,cid=5")
	require.NoError(t, err)
	_, err = run(t, "--server", url, "notify", "message_waiting", "--value")
	require.NoError(t, err)
	_, err = run(t, "--server", url, "notify", "service_state", "--service", `{"state":0,"operatorNumeric":"310260"}`)
	require.NoError(t, err)

	s := reg.Snapshot()
	assert.Equal(t, status.CallRinging, s.CallState)
	assert.Equal(t, "555", s.CallIncomingNumber)
	assert.Equal(t, 19, s.SignalStrength)
	assert.Equal(t, status.CellLocation{"lac": 4, "cid": 5}, s.CellLocation)
	assert.True(t, s.MessageWaiting)
	assert.Equal(t, "310260", s.ServiceState.OperatorNumeric)

	out, err := run(t, "--server", url, "sticky", broadcast.TopicPhoneState)
	require.NoError(t, err)
	assert.Contains(t, out, "incoming_number=555")
	assert.Contains(t, out, "state=RINGING")

	out, err = run(t, "--server", url, "sticky", broadcast.TopicSignalStrength, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "asu: 19")
}

func TestNotifyRejectsUnknownField(t *testing.T) {
	_, url := newTestServer(t)
	_, err := run(t, "--server", url, "notify", "volume")
	assert.ErrorContains(t, err, "404")
}

func TestDump(t *testing.T) {
	reg, url := newTestServer(t)
	require.NoError(t, reg.Listen(context.Background(), telreg.Subscription{
		ID:       "x",
		Label:    "statusbar",
		Listener: subscriber.NewChannel(1),
		Mask:     status.MaskOf(status.SignalStrengthField),
	}))

	out, err := run(t, "--server", url, "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "registrations: count=1\n  statusbar 0x2\n")
}

func TestOpenStickyStore(t *testing.T) {
	dir := t.TempDir()

	for _, store := range []string{"memory", "file", "sqlite"} {
		s, closeFn, err := openStickyStore(config.StickyConfig{
			Store:            store,
			Path:             dir + "/sticky." + store,
			FailureThreshold: 3,
			RetryAfter:       time.Second,
		})
		require.NoError(t, err, store)
		require.NoError(t, s.Save(broadcast.Announcement{Topic: "t", Fields: broadcast.Fields{"k": "v"}}), store)
		closeFn()
	}
}

func TestPrintUpdate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUpdate(&buf, subscriber.Update{Field: status.CallStateField, CallState: status.CallOffhook, IncomingNumber: "1"}, false))
	require.NoError(t, printUpdate(&buf, subscriber.Update{Field: status.DataActivityField, DataActivity: status.DataActivityOut}, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "call_state OFFHOOK number=1", lines[0])
	assert.Contains(t, lines[1], `"type":"data_activity"`)
}
