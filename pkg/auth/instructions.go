package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide explains how to copy the session cookies out of
// a logged-in browser
func ShowCookieExtractionGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "INSTAGRAM SESSION COOKIES")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "igarchiver talks to Instagram with the cookies of a logged-in browser.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Log in at https://www.instagram.com")
	fmt.Fprintln(w, "2. Open the developer tools (F12, or Cmd+Option+I on macOS)")
	fmt.Fprintln(w, "3. Open Application > Cookies (Chrome) or Storage > Cookies (Firefox)")
	fmt.Fprintln(w, "4. Select https://www.instagram.com and copy these values:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   sessionid   long value containing %3A, e.g. 12345678%3Aabcdef...")
	fmt.Fprintln(w, "   csrftoken   about 32 characters, e.g. YTQHujAgMhyveLvvuwCfw9CPI8ROAHoy")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Copy only the value, without quotes or semicolons. The cookies expire,")
	fmt.Fprintln(w, "so log in again when downloads start failing with authentication errors.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "These cookies give full access to the account. Never share them.")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

// ValidateSessionID performs a shape check on a sessionid cookie
func ValidateSessionID(s string) error {
	if len(s) < 20 || !strings.Contains(s, "%") {
		return fmt.Errorf("%w: sessionid should be a long value containing %%3A", ErrInvalidCredentials)
	}
	return nil
}

// ValidateCSRFToken performs a shape check on a csrftoken cookie
func ValidateCSRFToken(s string) error {
	if len(s) < 20 || len(s) > 64 {
		return fmt.Errorf("%w: csrftoken should be about 32 characters", ErrInvalidCredentials)
	}
	return nil
}
