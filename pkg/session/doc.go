/*
Package session implements the IOTRAC client's authentication lifecycle.

# States

A Session moves between these states:

	Anonymous ──Login──▶ LoggingIn ──▶ Authenticated
	                         │
	                         └──▶ AwaitingSecondFactor ──Verify2FA──▶ Authenticated
	                                       │                              │
	                                       └──CancelChallenge──▶ Anonymous │
	                                                                      │
	Authenticated ──SetupTOTP──▶ AwaitingTOTPSetup ──VerifyTOTP──▶ Authenticated
	Authenticated ──RefreshAuthToken──▶ RefreshingToken ──▶ Authenticated | Anonymous

Logout and ClearAuth return to Anonymous from any state.

# Persistence

The session is write-through: every transition that changes tokens or the
user is saved to the tokenstore.Store before memory is updated, so a crash
between the two never leaves memory ahead of storage.

# Results and failures

Operations return tagged results (LoginAuthenticated, LoginSecondFactor)
and a *Failure on error. A Failure's Kind tells the caller whether the input
was rejected locally without a network call, the server rejected it, or no
interpretable response arrived at all:

	res, err := sess.Login(ctx, email, password)
	var f *session.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case session.FailLocal:      // show next to the field
		case session.FailRejected:   // show the server's message
		case session.FailConnection: // offer a retry
		case session.FailBusy:       // another auth call is running
		}
	}
	switch r := res.(type) {
	case session.LoginAuthenticated:
	case session.LoginSecondFactor:
		_ = r.TempToken
	}

Errors that are not a *Failure come from the token store itself and mean
the medium is corrupt or not writable.

# Refresh

New registers the session as the apiclient refresher. When the backend
rejects the access token the client calls back into RefreshAuthToken; if the
refresh fails the session is cleared, which is the only transition that
signs the user out without being asked to.
*/
package session
