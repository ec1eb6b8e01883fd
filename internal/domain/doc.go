// Package domain models the data exchanged with the turbulent flux engine.
//
// # Samples
//
// A station day arrives as a columnar [Series]: one timestamp slice plus one
// float64 slice per [Channel]. Missing values are NaN everywhere inside the
// engine; there is no other in-band sentinel. Raw sonic data is logged at
// 20 Hz and resampled to a continuous 10 Hz grid that starts at the day's
// UTC midnight, so sample k of a resampled day is at day + k/10 s.
//
// Reference frames:
//
//	body frame    sonic axes as mounted (u along the boom, w up the mast)
//	earth frame   after tilt rotation: u toward east, v toward north, w up
//	streamline    per window: u along the mean wind, mean v = mean w = 0
//
// Sign convention: covariances with w are positive upward, so a positive
// sensible or latent heat flux warms or moistens the atmosphere.
//
// # Windows and records
//
// A day is tiled by fixed windows (default 10 minutes) aligned to midnight,
// never to data availability. Each window yields exactly one [FluxRecord]
// carrying one value per configured [Column], so the records of a day
// always form a rectangular table. A window without enough valid samples
// yields a record whose every value is missing.
//
// Writers replace missing values with a fill value (default
// [DefaultFillValue]) and attach per-column [ColumnStats] as metadata.
//
// # Orientation
//
// The heading of a drifting floe is noisy, so every window in an averaging
// block (default the whole day) is rotated with the block's mean heading.
// A block without any heading makes the day unprocessable; it is never
// rotated as if the heading were zero.
package domain
