package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("SCHOOLLIB_JWT_SECRET")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("SCHOOLLIB_JWT_ISSUER")
	if issuer == "" {
		issuer = "schoollib"
	}

	dur := 24 * time.Hour
	if ttl := os.Getenv("SCHOOLLIB_JWT_TTL_HOURS"); ttl != "" {
		if h, err := strconv.Atoi(ttl); err == nil && h > 0 {
			dur = time.Duration(h) * time.Hour
		}
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   issuer,
		JWTDuration: dur,
	}
}

// LoanPolicy holds the circulation business rules: role-dependent loan
// durations and the per-day late fine. Values are currency-agnostic
// integer units.
type LoanPolicy struct {
	StudentLoanDays int
	TeacherLoanDays int
	FinePerDay      int
}

func LoadLoanPolicy() LoanPolicy {
	return LoanPolicy{
		StudentLoanDays: envInt("SCHOOLLIB_STUDENT_LOAN_DAYS", 5),
		TeacherLoanDays: envInt("SCHOOLLIB_TEACHER_LOAN_DAYS", 20),
		FinePerDay:      envInt("SCHOOLLIB_FINE_PER_DAY", 10),
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
