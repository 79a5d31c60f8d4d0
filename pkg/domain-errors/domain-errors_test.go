package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite covers the error primitives shared by the handler and bootstrap layers.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeNotFound, Message: "entitlement not found"}
		s.Equal("entitlement not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeUpstreamAuth}
		s.Equal("upstream_auth_failed", err.Error())
	})
}

func (s *DomainErrorsSuite) TestUnwrap() {
	s.Run("returns wrapped error", func() {
		inner := errors.New("dial tcp: connection refused")
		err := &Error{Code: CodeUpstreamUnavailable, Message: "access service unreachable", Err: inner}
		s.Equal(inner, err.Unwrap())
		s.Equal(inner, errors.Unwrap(err))
	})

	s.Run("returns nil when no wrapped error", func() {
		err := &Error{Code: CodeNotFound}
		s.Nil(err.Unwrap())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		s.True(errors.Is(&Error{Code: CodeNotFound, Message: "a"}, &Error{Code: CodeNotFound, Message: "b"}))
	})

	s.Run("does not match different codes", func() {
		s.False(errors.Is(&Error{Code: CodeNotFound}, &Error{Code: CodeInternal}))
	})

	s.Run("does not match plain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves existing domain code", func() {
		inner := New(CodeInvalidConfig, "client id too short")
		wrapped := Wrap(inner, CodeInternal, "could not build stack")
		s.True(HasCode(wrapped, CodeInvalidConfig))
		s.Equal("could not build stack", wrapped.Error())
	})

	s.Run("applies code to foreign errors", func() {
		wrapped := Wrap(fmt.Errorf("boom"), CodeInternal, "unexpected")
		s.True(HasCode(wrapped, CodeInternal))
	})

	s.Run("HasCode is false for plain errors", func() {
		s.False(HasCode(errors.New("x"), CodeInternal))
	})
}
