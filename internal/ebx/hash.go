package ebx

// hashKeyword computes the 32-bit djb2 hash in its xor form (start
// value 5381, multiply by 33, xor in each byte) Frostbite uses to turn a field/complex name into the key
// descriptors reference, mirroring ebx.py's hasher().
func hashKeyword(keyword string) uint32 {
	var hash uint32 = 5381
	for i := 0; i < len(keyword); i++ {
		hash = hash*33 ^ uint32(keyword[i])
	}
	return hash
}
