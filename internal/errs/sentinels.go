package errs

// Sentinels for conditions callers test with errors.Is.
var (
	// ErrNoDataOffline is returned when the device is offline and the lot cache is empty.
	ErrNoDataOffline = E(KindNoData, "no data available offline", nil)

	// ErrStorageUnavailable is returned by the degraded store after the local
	// database failed to initialize.
	ErrStorageUnavailable = E(KindStorage, "local storage unavailable", nil)

	// ErrNotLoggedIn is returned by user-scoped operations without a session.
	ErrNotLoggedIn = E(KindUnauthorized, "not logged in", nil)

	// ErrSpotTaken is returned when a spot already has an active reservation.
	ErrSpotTaken = E(KindNotFound, "spot already reserved", nil)

	// ErrInvalidCredentials is returned for unknown emails and wrong passwords.
	ErrInvalidCredentials = E(KindUnauthorized, "invalid email or password", nil)
)
