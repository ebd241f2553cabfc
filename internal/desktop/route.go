package desktop

import "strings"

const DefaultRoute = "/notifications"

var routes = map[string]string{
	"assignment": "/student/assignments",
	"grade":      "/student/grades",
	"attendance": "/student/attendance",
	"payment":    "/student/payments",
}

// Route maps a notification category to the console page it opens.
func Route(category string) string {
	if r, ok := routes[strings.ToLower(strings.TrimSpace(category))]; ok {
		return r
	}
	return DefaultRoute
}

// Navigator opens a console route.
type Navigator interface {
	Navigate(target string)
}

type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }
