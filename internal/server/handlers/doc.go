// Package handlers contains the HTTP handlers of the laundrycycle API.
//
// Entity handlers translate requests into coordinator calls and render
// snapshots as JSON. Every failure goes through the foundation/errors HTTP
// adapter so status codes follow the error category.
package handlers
