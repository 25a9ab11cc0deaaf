package campaign

import (
	"context"

	"github.com/yourusername/campaign-forge/internal/jobs"
)

// ExampleCampaign はアップロード無しで定型キャンペーンを返します。
// 翻訳サービスが使える場合は指定言語へ翻訳します。
func (p *Pipeline) ExampleCampaign(ctx context.Context, complexity Complexity, language string) (string, []string) {
	if language == "" {
		language = p.opts.NativeLanguage
	}
	fb := FallbackFor(complexity)
	r := &runState{
		desc:       &jobs.Descriptor{TargetLanguage: language},
		complexity: complexity,
		content:    fb.Content,
		title:      fb.Title,
		language:   p.opts.NativeLanguage,
		log:        p.logger,
	}

	var warnings []string
	if out := p.localize(ctx, r); out.Kind == OutcomeDegraded {
		warnings = append(warnings, out.Warning)
	}
	p.format(ctx, r)
	return r.document, warnings
}
