// Package auth issues and verifies the bearer tokens that guard /api when
// auth.enabled is set. Tokens are HS256 JWTs signed with a shared secret.
//
//	svc, err := auth.NewService(cfg)
//	token, err := svc.Generate("ops", 24*time.Hour)
//	claims, err := svc.Parse(token)
package auth
