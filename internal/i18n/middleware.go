package i18n

import "net/http"

// CookieName is the cookie holding the user's language choice.
const CookieName = "lang"

// Middleware picks the request language and stores its localizer in the
// request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookie string
		if c, err := r.Cookie(CookieName); err == nil {
			cookie = c.Value
		}
		lang := Match(cookie, r.Header.Get("Accept-Language"))
		ctx := WithLanguage(r.Context(), lang)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
