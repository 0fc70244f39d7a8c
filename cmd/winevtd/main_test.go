package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/winevttest"
)

func seeded() *winevttest.API {
	api := winevttest.New()
	for i := 0; i < 5; i++ {
		api.AddEvent("Application", winevttest.Event{EventID: uint16(100 + i)})
	}
	return api
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func eventID(m map[string]any) any {
	return m["event"].(map[string]any)["system"].(map[string]any)["eventId"]
}

func TestRunQuery(t *testing.T) {
	var buf bytes.Buffer
	err := runQuery(seeded(), queryArgs{channel: "Application", xpath: "*"}, &buf)
	require.NoError(t, err)
	recs := lines(t, &buf)
	require.Len(t, recs, 5)
	assert.Equal(t, "Application", recs[0]["channel"])
	assert.Equal(t, "100", eventID(recs[0]))
}

func TestRunQueryMaxAndSeek(t *testing.T) {
	var buf bytes.Buffer
	err := runQuery(seeded(), queryArgs{channel: "Application", xpath: "*", seek: "last", offset: -1, max: 1}, &buf)
	require.NoError(t, err)
	recs := lines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "103", eventID(recs[0]))
}

func TestRunQueryPretty(t *testing.T) {
	var buf bytes.Buffer
	err := runQuery(seeded(), queryArgs{channel: "Application", xpath: "*", max: 2, pretty: true}, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "\n  \"channel\": \"Application\"")

	dec := json.NewDecoder(&buf)
	var ids []any
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		ids = append(ids, eventID(m))
	}
	assert.Equal(t, []any{"100", "101"}, ids)
}

func TestRunQueryErrors(t *testing.T) {
	var cnf *winevt.ChannelNotFoundError
	assert.ErrorAs(t, runQuery(seeded(), queryArgs{channel: "Nope", xpath: "*"}, &bytes.Buffer{}), &cnf)

	var ce *winevt.ConfigurationError
	assert.ErrorAs(t, runQuery(seeded(), queryArgs{channel: "Application", xpath: "*", seek: "middle"}, &bytes.Buffer{}), &ce)
	assert.ErrorAs(t, runQuery(seeded(), queryArgs{channel: "Application", xpath: "*", locale: "xx_XX"}, &bytes.Buffer{}), &ce)
	assert.ErrorAs(t, runQuery(seeded(), queryArgs{channel: "Application", xpath: "*", remote: SessionConfig{Server: "dc01", Auth: "basic"}}, &bytes.Buffer{}), &ce)
}

func TestRunChannels(t *testing.T) {
	api := winevttest.New()
	api.AddChannel("Application", 0)
	api.AddChannel("Microsoft-Windows-Kernel-Debug/Analytic", 2)

	var buf bytes.Buffer
	require.NoError(t, runChannels(api, false, SessionConfig{}, &buf))
	assert.Equal(t, "Application\n", buf.String())

	buf.Reset()
	require.NoError(t, runChannels(api, true, SessionConfig{}, &buf))
	assert.Equal(t, "Application\nMicrosoft-Windows-Kernel-Debug/Analytic\n", buf.String())
}

func TestPrintLocales(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printLocales(&buf))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "CODE"))
	assert.Contains(t, out, "neutral")
	assert.Regexp(t, `en_US\s+0x0409\s+English`, out)
}

func TestSessionConfig(t *testing.T) {
	var none *SessionConfig
	s, err := none.session()
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = (&SessionConfig{Server: "dc01", Username: "svc", Auth: "kerberos"}).session()
	require.NoError(t, err)
	assert.Equal(t, &winevt.Session{Server: "dc01", Username: "svc", Auth: winevt.AuthKerberos}, s)
}

func TestEventLogConfigOptions(t *testing.T) {
	c := &EventLogConfig{Channel: "Security", RateLimit: 100, Locale: "en_US", Remote: &SessionConfig{Server: "dc01"}}
	opts, err := c.options()
	require.NoError(t, err)
	assert.Len(t, opts, 7)

	c.Remote.Auth = "basic"
	_, err = c.options()
	assert.Error(t, err)
}

func TestDestinationConfigValidation(t *testing.T) {
	_, err := (&S3Config{}).Configure()
	assert.EqualError(t, err, "s3: missing bucketName")
	_, err = (&WebhookConfig{}).Configure()
	assert.EqualError(t, err, "webhook: missing url")
	_, err = (&RedisConfig{}).Configure()
	assert.EqualError(t, err, "redis: missing addr")
	_, err = (&WebhookConfig{URL: "http://localhost", FlushFrequency: "soon"}).Configure()
	assert.Error(t, err)

	d, err := (&PrinterConfig{Delim: "\r\n"}).Configure()
	require.NoError(t, err)
	assert.NotNil(t, d)
}
