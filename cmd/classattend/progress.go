package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
)

// progress returns a callback driving a progress bar created on the first
// report, and a finish func to close it.
func progress(description, unit string) (func(done, total int), func()) {
	var bar *progressbar.ProgressBar
	report := func(done, total int) {
		if total == 0 {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString(unit),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			fmt.Println()
		}
	}
	return report, finish
}
