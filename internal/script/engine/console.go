package engine

import "go.uber.org/zap"

// printer routes script console output to zap
type printer struct {
	logger *zap.Logger
}

func (p *printer) Log(s string)   { p.logger.Info(s) }
func (p *printer) Warn(s string)  { p.logger.Warn(s) }
func (p *printer) Error(s string) { p.logger.Error(s) }
