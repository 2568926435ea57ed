// Package textutil holds the small string transforms shared by the rule
// engine and the notification handlers.
package textutil
