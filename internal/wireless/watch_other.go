//go:build !linux

package wireless

import "context"

func (s *Station) watch(context.Context) error {
	return ErrUnsupported
}
