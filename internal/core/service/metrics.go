package service

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveDecision(string) {}

func (NopMetrics) ObserveUpload(error) {}

func (NopMetrics) ObservePlaceholder(error) {}

func (NopMetrics) ObserveAsset(error) {}
