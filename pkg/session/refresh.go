package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshAuthToken exchanges the refresh token for a new pair. On any
// failure, including having no refresh token, the session is cleared and
// false is returned.
func (s *Session) RefreshAuthToken(ctx context.Context) bool {
	_, err := s.refresh(ctx)
	return err == nil
}

// refreshForClient is the apiclient.Refresher.
func (s *Session) refreshForClient(ctx context.Context) (string, error) {
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	ctx = s.operation(ctx, "refresh")
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap := s.Snapshot()
	if snap.RefreshToken == "" || snap.User == nil {
		s.forceLogout(ctx, "no refresh token")
		return "", ErrNoRefreshToken
	}

	prev := snap.State
	if prev == Authenticated {
		s.setState(RefreshingToken)
	} else if prev == RefreshingToken {
		prev = Authenticated
	}

	var resp refreshResponse
	err := s.client.DoPublic(ctx, http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": snap.RefreshToken}, &resp)
	if err == nil && resp.AccessToken == "" {
		err = errors.New("session: access_token missing from refresh response")
	}
	if err != nil {
		s.forceLogout(ctx, err.Error())
		return "", err
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = snap.RefreshToken
	}

	if err := s.commit(ctx, resp.AccessToken, refreshToken, snap.User, prev); err != nil {
		s.forceLogout(ctx, err.Error())
		return "", err
	}

	s.log(ctx).Debug("access token refreshed")
	return resp.AccessToken, nil
}

func (s *Session) forceLogout(ctx context.Context, reason string) {
	s.log(ctx).Warn("token refresh failed, signing out", "reason", reason)
	_ = s.ClearAuth(ctx)
}

// Me fetches the profile and persists it alongside the current tokens.
func (s *Session) Me(ctx context.Context) (tokenstore.User, error) {
	ctx = s.operation(ctx, "me")
	if s.Snapshot().AccessToken == "" {
		return tokenstore.User{}, localFailure(ErrNotSignedIn)
	}

	var me tokenstore.User
	if err := s.client.Get(ctx, "/auth/me", &me); err != nil {
		return tokenstore.User{}, remoteFailure(err, "Could not load your profile.")
	}

	// Tokens may have been refreshed during the call.
	snap := s.Snapshot()
	if snap.AccessToken == "" {
		return tokenstore.User{}, localFailure(ErrNotSignedIn)
	}
	if err := s.commit(ctx, snap.AccessToken, snap.RefreshToken, &me, snap.State); err != nil {
		return tokenstore.User{}, err
	}
	return me, nil
}
