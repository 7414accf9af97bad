package authcore

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PasswordReset issues reset codes by email and redeems them.
type PasswordReset struct {
	Store    Store
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	Email    EmailSender
	Generate CodeGenerator
	Logger   *slog.Logger
	Now      func() time.Time

	// Page that accepts the code. Used when the caller does not supply one.
	ResetURL string

	// Codes older than this are rejected. Zero disables expiry.
	CodeTTL time.Duration

	// Upper bound on email delivery. Zero means no bound.
	EmailTimeout time.Duration

	Subject string
}

func NewPasswordReset(store Store, hasher PasswordHasher, tokens TokenIssuer, sender EmailSender, resetURL string) *PasswordReset {
	return &PasswordReset{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Email:    sender,
		Generate: GenerateResetCode,
		ResetURL: resetURL,
		CodeTTL:  DefaultResetCodeTTL,
	}
}

func (p *PasswordReset) getSubject() string {
	if p.Subject != "" {
		return p.Subject
	}
	return "Reset password"
}

func (p *PasswordReset) getGenerator() CodeGenerator {
	if p.Generate != nil {
		return p.Generate
	}
	return GenerateResetCode
}

// RequestPasswordReset stores a fresh code on the local passport of the user
// owning email and mails a link carrying it. callbackURL overrides ResetURL.
func (p *PasswordReset) RequestPasswordReset(ctx context.Context, email, callbackURL string) error {
	if email == "" {
		return BadRequest(MsgMissingEmail)
	}
	user, err := p.Store.FindUser(ctx, UserFilter{Email: email, WithPassports: true})
	if errors.Is(err, ErrNotFound) || (err == nil && len(user.Passports) == 0) {
		return NotFound(MsgEmailDoesNotExist)
	} else if err != nil {
		return InternalError(err)
	}

	code, err := p.getGenerator()()
	if err != nil {
		return InternalError(err)
	}

	passport := user.Passport(ProviderLocal)
	if passport == nil {
		return Conflict(MsgNoLocalPassport)
	}

	issued := clockOrDefault(p.Now)().UTC()
	passport.ResetCode = code
	passport.ResetCodeIssuedAt = &issued
	if _, err := p.Store.SavePassport(ctx, passport); err != nil {
		return InternalError(err)
	}

	link := resetLink(callbackURL, p.ResetURL, code)
	sendCtx, cancel := withTimeout(ctx, p.EmailTimeout)
	defer cancel()
	err = p.Email.Send(sendCtx, Email{
		To:      user.Email,
		Subject: p.getSubject(),
		Text:    link,
		HTML:    link,
	})
	if err != nil {
		loggerOrDefault(p.Logger).ErrorContext(ctx, "reset email not sent", "user", user.ID, "error", err)
		return InternalError(err, MsgEmailFailed)
	}
	return nil
}

// ResetPassword redeems code, replacing the owner's password. The code is
// cleared in the same write that stores the new hash.
func (p *PasswordReset) ResetPassword(ctx context.Context, code, password, confirmation string) (*Session, error) {
	if code == "" {
		return nil, BadRequest(MsgMissingCode)
	}
	if password == "" {
		return nil, BadRequest(MsgInvalidPassword)
	}
	if confirmation != "" && confirmation != password {
		return nil, BadRequest(MsgPasswordMismatch)
	}

	passport, err := p.Store.FindPassportByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFound(MsgInvalidCode)
	} else if err != nil {
		return nil, InternalError(err)
	}

	if passport.ResetCodeExpired(clockOrDefault(p.Now)(), p.CodeTTL) {
		passport.ResetCode = ""
		passport.ResetCodeIssuedAt = nil
		if _, err := p.Store.SavePassport(ctx, passport); err != nil {
			loggerOrDefault(p.Logger).WarnContext(ctx, "clearing expired reset code failed", "passport", passport.ID, "error", err)
		}
		return nil, AuthFailed(MsgCodeExpired)
	}

	digest, err := p.Hasher.Hash(password)
	if err != nil {
		return nil, InternalError(err)
	}
	user, err := p.Store.RedeemResetCode(ctx, passport, digest)
	if errors.Is(err, ErrNotFound) {
		// someone else redeemed it first
		return nil, NotFound(MsgInvalidCode)
	} else if err != nil {
		return nil, InternalError(err)
	}
	return newSession(p.Tokens, user)
}

func resetLink(callbackURL, fallback, code string) string {
	base := callbackURL
	if base == "" {
		base = fallback
	}
	return appendQuery(base, "code="+code)
}
