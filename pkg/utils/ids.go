package utils

// FirstMissingPositive returns the smallest positive integer not present in
// nums. It is the single ID-allocation primitive shared by session, user and
// note creation, so freed IDs are reused smallest-first. Zeros, negatives and
// duplicates are tolerated. The slice is reordered in place; callers pass a
// scratch copy they own.
func FirstMissingPositive(nums []int) int {
	for i := range nums {
		// Move each in-range value to its home index value-1. The equality
		// check against the home slot breaks the swap cycle between two
		// duplicate values.
		for nums[i] > 0 && nums[i]-1 < len(nums) &&
			nums[i] != i+1 && nums[i] != nums[nums[i]-1] {
			home := nums[i] - 1
			nums[i], nums[home] = nums[home], nums[i]
		}
	}

	for i, v := range nums {
		if v != i+1 {
			return i + 1
		}
	}
	return len(nums) + 1
}
