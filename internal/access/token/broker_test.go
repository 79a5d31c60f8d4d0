package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"signaccess/internal/access/credential"
	"signaccess/internal/access/metrics"
	"signaccess/internal/access/transport"
	"signaccess/internal/access/transport/mocks"
	pkgtestutil "signaccess/pkg/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func structuredSecret(t *testing.T) (string, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	raw, err := jose.JSONWebKey{Key: priv}.MarshalJSON()
	require.NoError(t, err)
	return "secret-token:conductorone.com:v1:" + base64.RawURLEncoding.EncodeToString(raw), pub
}

type BrokerSuite struct {
	suite.Suite
	tenant  *pkgtestutil.FakeTenant
	client  *transport.Client
	clock   *fakeClock
	metrics *metrics.Metrics
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerSuite))
}

func (s *BrokerSuite) SetupTest() {
	s.tenant = pkgtestutil.NewFakeTenant(s.T())
	client, err := transport.New(s.tenant.URL)
	s.Require().NoError(err)
	s.client = client
	s.clock = &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	s.metrics = metrics.New(prometheus.NewRegistry())
}

func (s *BrokerSuite) newBroker(secret string, mode Mode) *Broker {
	b, err := New(s.client, Config{
		ClientID: pkgtestutil.TestIDs.ClientID,
		Secret:   secret,
		Mode:     mode,
		Endpoint: pkgtestutil.Endpoint(pkgtestutil.TokenPath),
	}, WithClock(s.clock.Now), WithMetrics(s.metrics))
	s.Require().NoError(err)
	return b
}

func (s *BrokerSuite) TestCachedTokenIsReusedWithoutNetwork() {
	b := s.newBroker("opaque-secret", ModeBasic)
	ctx := context.Background()

	first, err := b.GetToken(ctx)
	s.Require().NoError(err)
	for i := 0; i < 5; i++ {
		tok, err := b.GetToken(ctx)
		s.Require().NoError(err)
		s.Equal(first, tok)
	}

	s.Equal(1, s.tenant.Count(pkgtestutil.TokenPath))
	s.Equal(float64(5), testutil.ToFloat64(s.metrics.TokenCacheHitsTotal))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.TokenFetchesTotal.WithLabelValues("success")))
}

func (s *BrokerSuite) TestExpiryAppliesSafetyMargin() {
	s.tenant.SetExpiresIn(3600)
	b := s.newBroker("opaque-secret", ModeBasic)
	ctx := context.Background()

	_, err := b.GetToken(ctx)
	s.Require().NoError(err)
	st := b.Status(ctx)
	s.True(st.Cached)
	s.Equal(s.clock.Now().Add(3300*time.Second), st.ExpiresAt)

	s.clock.Advance(3300*time.Second - time.Second)
	_, err = b.GetToken(ctx)
	s.Require().NoError(err)
	s.Equal(1, s.tenant.Count(pkgtestutil.TokenPath))

	s.clock.Advance(time.Second)
	tok, err := b.GetToken(ctx)
	s.Require().NoError(err)
	s.Equal("token-2", tok)
	s.Equal(2, s.tenant.Count(pkgtestutil.TokenPath))
}

func (s *BrokerSuite) TestShortLifetimeIsNeverCached() {
	s.tenant.SetExpiresIn(300)
	b := s.newBroker("opaque-secret", ModeBasic)

	_, err := b.GetToken(context.Background())
	s.Require().NoError(err)
	_, err = b.GetToken(context.Background())
	s.Require().NoError(err)

	s.Equal(2, s.tenant.Count(pkgtestutil.TokenPath))
	s.False(b.Status(context.Background()).Cached)
}

func (s *BrokerSuite) TestInvalidateForcesRefetch() {
	b := s.newBroker("opaque-secret", ModeBasic)
	ctx := context.Background()

	tok1, err := b.GetToken(ctx)
	s.Require().NoError(err)

	b.Invalidate()
	b.Invalidate()
	s.False(b.Status(ctx).Cached)

	tok2, err := b.GetToken(ctx)
	s.Require().NoError(err)
	s.NotEqual(tok1, tok2)
	s.Equal(2, s.tenant.Count(pkgtestutil.TokenPath))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.TokenInvalidationsTotal))
}

func (s *BrokerSuite) TestBasicModeSendsBasicCredentials() {
	b := s.newBroker("opaque-secret", ModeBasic)
	s.Equal(ModeBasic, b.Mode())

	_, err := b.GetToken(context.Background())
	s.Require().NoError(err)

	calls := s.tenant.CallsTo(pkgtestutil.TokenPath)
	s.Require().Len(calls, 1)
	req := &http.Request{Header: calls[0].Header}
	user, pass, ok := req.BasicAuth()
	s.True(ok)
	s.Equal(pkgtestutil.TestIDs.ClientID, user)
	s.Equal("opaque-secret", pass)
	s.Equal("application/x-www-form-urlencoded", calls[0].Header.Get("Content-Type"))
	s.Equal("grant_type=client_credentials", string(calls[0].Body))
}

func (s *BrokerSuite) TestAssertionModeSendsFormFieldsOnly() {
	secret, pub := structuredSecret(s.T())
	b := s.newBroker(secret, ModeAuto)
	s.Equal(ModeAssertion, b.Mode())

	_, err := b.GetToken(context.Background())
	s.Require().NoError(err)

	calls := s.tenant.CallsTo(pkgtestutil.TokenPath)
	s.Require().Len(calls, 1)
	s.Empty(calls[0].Header.Get("Authorization"))

	form := calls[0].Form()
	s.Equal("client_credentials", form.Get("grant_type"))
	s.Equal(pkgtestutil.TestIDs.ClientID, form.Get("client_id"))
	s.Equal(AssertionType, form.Get("client_assertion_type"))

	host := strings.TrimPrefix(s.tenant.URL, "http://")
	host = host[:strings.LastIndex(host, ":")]
	_, err = jwt.ParseWithClaims(form.Get("client_assertion"), &credential.AssertionClaims{},
		func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithAudience(host),
		jwt.WithTimeFunc(s.clock.Now),
	)
	s.NoError(err)
}

func (s *BrokerSuite) TestNon200IsTokenFetchErrorAndNothingCached() {
	s.tenant.RespondOnce(pkgtestutil.TokenPath, http.StatusBadRequest, `{"error":"invalid_client"}`)
	b := s.newBroker("opaque-secret", ModeBasic)

	_, err := b.GetToken(context.Background())
	s.Require().Error(err)
	e, ok := transport.AsError(err)
	s.Require().True(ok)
	s.Equal(transport.CategoryTokenFetch, e.Category)
	s.Equal(http.StatusBadRequest, e.StatusCode)
	s.Equal(`{"error":"invalid_client"}`, e.Body)
	s.False(b.Status(context.Background()).Cached)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.TokenFetchesTotal.WithLabelValues("failure")))

	_, err = b.GetToken(context.Background())
	s.NoError(err)
	s.Equal(2, s.tenant.Count(pkgtestutil.TokenPath))
}

func (s *BrokerSuite) TestMissingAccessTokenIsRejected() {
	s.tenant.RespondOnce(pkgtestutil.TokenPath, http.StatusOK, `{"expires_in":3600}`)
	b := s.newBroker("opaque-secret", ModeBasic)

	_, err := b.GetToken(context.Background())
	s.Equal(transport.CategoryTokenFetch, transport.CategoryOf(err))
}

func (s *BrokerSuite) TestMalformedBodyIsBadData() {
	s.tenant.RespondOnce(pkgtestutil.TokenPath, http.StatusOK, `not json`)
	b := s.newBroker("opaque-secret", ModeBasic)

	_, err := b.GetToken(context.Background())
	s.Equal(transport.CategoryBadData, transport.CategoryOf(err))
}

func (s *BrokerSuite) TestConcurrentCallersShareOneFetch() {
	b := s.newBroker("opaque-secret", ModeBasic)

	res := pkgtestutil.RunConcurrent(50, func(int) error {
		_, err := b.GetToken(context.Background())
		return err
	})

	s.Equal(int32(50), res.Successes)
	s.Equal(1, s.tenant.Count(pkgtestutil.TokenPath))
}

func TestNew_Validation(t *testing.T) {
	client, err := transport.New("https://example.conductor.one")
	require.NoError(t, err)
	secret, _ := structuredSecret(t)

	tests := []struct {
		name     string
		cfg      Config
		category transport.Category
	}{
		{"short client id", Config{ClientID: "short", Secret: "s", Endpoint: "auth/v1/token"}, transport.CategoryInvalidConfig},
		{"empty secret", Config{ClientID: pkgtestutil.TestIDs.ClientID, Endpoint: "auth/v1/token"}, transport.CategoryInvalidConfig},
		{"empty endpoint", Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "s"}, transport.CategoryInvalidConfig},
		{"broken structured secret", Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "a:b:v2:c", Mode: ModeAssertion, Endpoint: "auth/v1/token"}, transport.CategoryMalformedCredential},
		{"opaque secret forced into assertion mode", Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "opaque", Mode: ModeAssertion, Endpoint: "auth/v1/token"}, transport.CategoryMalformedCredential},
		{"unknown mode", Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: secret, Mode: "kerberos", Endpoint: "auth/v1/token"}, transport.CategoryInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(client, tt.cfg)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.Equal(t, tt.category, transport.CategoryOf(err))
		})
	}

	t.Run("nil client", func(t *testing.T) {
		_, err := New(nil, Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "s", Endpoint: "t"})
		assert.Equal(t, transport.CategoryInvalidConfig, transport.CategoryOf(err))
	})
}

func TestResolveMode(t *testing.T) {
	assert.Equal(t, ModeAssertion, ResolveMode(ModeAuto, "a:b:v1:c"))
	assert.Equal(t, ModeBasic, ResolveMode(ModeAuto, "opaque"))
	assert.Equal(t, ModeBasic, ResolveMode("", "opaque"))
	assert.Equal(t, ModeBasic, ResolveMode(ModeBasic, "a:b:v1:c"))
	assert.Equal(t, ModeAssertion, ResolveMode(ModeAuto, "a:b:v1"))
	assert.Equal(t, ModeAssertion, ResolveMode(ModeAuto, "a:b:v1:c:d"))
}

func TestNewAuthenticator_MalformedStructuredSecretInAutoMode(t *testing.T) {
	for _, secret := range []string{"prefix:data:v1", "prefix:data:v1:key:extra"} {
		t.Run(secret, func(t *testing.T) {
			auth, err := NewAuthenticator(ModeAuto, "cheerful-otter-12345@example", secret, "example.conductor.one")
			require.Error(t, err)
			assert.Nil(t, auth)
			assert.True(t, transport.IsCategory(err, transport.CategoryMalformedCredential))
		})
	}
}

func TestInvalidateDuringFetchIsNotCached(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := fetches.Add(1)
		if n == 1 {
			entered <- struct{}{}
			<-release
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + string(rune('0'+n)) + `","expires_in":3600}`))
	}))
	defer srv.Close()

	client, err := transport.New(srv.URL)
	require.NoError(t, err)
	b, err := New(client, Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "s", Mode: ModeBasic, Endpoint: "token"})
	require.NoError(t, err)

	done := make(chan string)
	go func() {
		tok, err := b.GetToken(context.Background())
		assert.NoError(t, err)
		done <- tok
	}()

	<-entered
	b.Invalidate()
	close(release)

	assert.Equal(t, "tok-1", <-done)
	assert.False(t, b.Status(context.Background()).Cached)

	tok, err := b.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestGetToken_NetworkFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("dial tcp: connection refused"))

	client, err := transport.New("https://example.conductor.one", transport.WithHTTPDoer(doer))
	require.NoError(t, err)
	b, err := New(client, Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "s", Mode: ModeBasic, Endpoint: "auth/v1/token"})
	require.NoError(t, err)

	_, err = b.GetToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, transport.CategoryNetwork, transport.CategoryOf(err))
	assert.False(t, b.Status(context.Background()).Cached)
}

func TestGetToken_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"access_token":"late","expires_in":3600}`))
	}))
	defer srv.Close()
	defer close(release)

	client, err := transport.New(srv.URL)
	require.NoError(t, err)
	b, err := New(client, Config{ClientID: pkgtestutil.TestIDs.ClientID, Secret: "s", Mode: ModeBasic, Endpoint: "token"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.GetToken(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
