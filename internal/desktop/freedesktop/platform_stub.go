//go:build !linux

package freedesktop

import (
	"context"

	"notifysync/internal/desktop"
	logx "notifysync/pkg/logx"
)

type Platform struct{}

func New(context.Context, string, logx.Logger) (*Platform, error) {
	return nil, ErrUnsupported
}

func (p *Platform) Supported() bool                { return false }
func (p *Platform) Permission() desktop.Permission { return desktop.PermissionUnsupported }
func (p *Platform) RequestPermission(context.Context) (desktop.Permission, error) {
	return desktop.PermissionUnsupported, nil
}
func (p *Platform) Show(desktop.Toast, func(string)) (desktop.Handle, error) {
	return nil, ErrUnsupported
}
func (p *Platform) Close() error { return nil }
