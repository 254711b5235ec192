package mcpserver

// RemovalMethods documents how nitrogen removal is computed so LLM consumers
// can explain the numbers returned by the tools.
const RemovalMethods = `# nsink Removal Methods

All removal values are percentages in [0, 100] of the nitrogen entering a unit.

## Land (hydric soils and impervious surface)

- A cell on a soil map unit whose hydric percentage is at or above the hydric
  threshold (default 50) removes 100%; other cells remove 0%.
- Impervious surface scales removal down: removal = base * (1 - impervious/100).
  A cell at or above the impervious threshold (default 50) is typed
  ` + "`land-impervious`" + `.
- Off-network lakes, streams and canals override the soil value on the cells
  they cover: ` + "`removal`" + ` forces 100%, ` + "`pass-through`" + ` forces 0%.
  When two policies meet on one cell, pass-through wins.

## Streams

- depth (m) = 0.2612 * Q^0.3966, with Q the mean annual flow in m3/s. When Q
  is not positive a depth is taken from stream order.
- decay k (1/day) = 0.0513 * depth^-1.319
- removal = 100 * (1 - exp(-k * TOTMA)), with TOTMA the travel time in days.

## Lakes

- hydraulic load Hl (m/yr) = Q * 31536000 / area, with Q the largest outflow
  of the lake's member segments and area the lake surface area
  (or volume / mean depth when area is unknown).
- removal = 79.24 - 33.26 * log10(Hl), clamped to [0, 100].
- A flow path crossing several segments of one lake applies lake removal once.

## Flow paths

A flow path runs over land following D8 flow direction until it reaches the
buffer of an on-network stream, then follows the stream network to the
outlet. Nitrogen out of each unit is N_out = N_in * (1 - removal/100),
starting at 100. Cumulative removal is 100 minus the final N_out.

## Static maps

- ` + "`removal_effic`" + `: per-cell removal, with stream and lake removal burned in.
- ` + "`transport_idx`" + `: 100 minus the cumulative removal interpolated (inverse
  distance weighting) from sampled flow paths.
- ` + "`loading_idx`" + `: relative nitrogen loading by land cover class.
- ` + "`delivery_idx`" + `: loading * transport / 100.
`
