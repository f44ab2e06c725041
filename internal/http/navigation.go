package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const NavigationCookieName = "migrator_nav"

// Location is the last database and table a client looked at.
type Location struct {
	DB    string `json:"db"`
	Table string `json:"table"`
}

// Navigator keeps each client's last location in a signed cookie, so nothing
// about navigation lives on the server.
type Navigator struct {
	cookie *securecookie.SecureCookie
	secure bool
}

func NewNavigator(secretKey []byte, secure bool) *Navigator {
	sc := securecookie.New(secretKey, nil)
	sc.MaxAge(int((24 * time.Hour * 30).Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Navigator{cookie: sc, secure: secure}
}

func (n *Navigator) Remember(w http.ResponseWriter, loc Location) error {
	encoded, err := n.cookie.Encode(NavigationCookieName, loc)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     NavigationCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   n.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Last returns the remembered location; a missing or tampered cookie is no location.
func (n *Navigator) Last(r *http.Request) (Location, bool) {
	c, err := r.Cookie(NavigationCookieName)
	if err != nil {
		return Location{}, false
	}
	var loc Location
	if err := n.cookie.Decode(NavigationCookieName, c.Value, &loc); err != nil {
		return Location{}, false
	}
	return loc, loc.DB != ""
}
