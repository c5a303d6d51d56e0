/*Package interval assigns genomic positions to intervals.

  SegmentIndex / AssignSegments map each (group, chromosome, position) point to
  the unique left-closed, right-open segment covering it within the same group
  and chromosome.  Segments are expected to tile or partially tile each
  chromosome.  Overlapping segments are allowed: a position contained in more
  than one segment is reported as unassigned.

  RegionSet is an interval-union loaded from a BED file or region strings.
  (Note the 'union'.  Overlapping intervals are merged.)
*/
package interval
