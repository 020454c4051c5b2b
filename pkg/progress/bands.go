package progress

// Band maps a phase-local completion fraction onto a fixed slice of the
// overall job percentage. The reinstallation pipeline uses fixed weight bands
// so the client progress bar advances monotonically no matter how many
// batches each phase takes.
type Band struct {
	From int
	To   int
}

// Fixed bands for the batch reinstallation pipeline.
var (
	BandBackup       = Band{From: 0, To: 10}
	BandCleanup      = Band{From: 10, To: 30}
	BandRepoBatch    = Band{From: 30, To: 70}
	BandPremiumBatch = Band{From: 70, To: 95}
	BandFinalize     = Band{From: 95, To: 100}
)

// Percent maps done/total within the band onto the global percentage.
// A zero total maps to the start of the band.
func (b Band) Percent(done, total int) int {
	if total <= 0 {
		return b.From
	}
	if done > total {
		done = total
	}
	if done < 0 {
		done = 0
	}
	return b.From + (b.To-b.From)*done/total
}
